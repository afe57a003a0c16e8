package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"pixelgram/internal/models"
	"pixelgram/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (ts *testServer) addPost(t *testing.T, token, caption string) uint {
	t.Helper()
	req := multipartRequest(t, "/api/v1/post/addPost", token,
		map[string]string{"caption": caption}, "image", testutil.TinyPNG(t, 32, 24))
	resp, envelope := ts.do(t, req)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, envelope.Message)
	return uint(dataMap(t, envelope)["id"].(float64))
}

func postPath(action string, id uint) string {
	return "/api/v1/post/" + action + "/" + strconv.Itoa(int(id))
}

func TestAddPost(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.login(t, "alice")

	t.Run("Image is required", func(t *testing.T) {
		req := multipartRequest(t, "/api/v1/post/addPost", token, map[string]string{"caption": "no image"}, "", nil)
		resp, envelope := ts.do(t, req)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Image is required", envelope.Message)
	})

	t.Run("Stored and served", func(t *testing.T) {
		req := multipartRequest(t, "/api/v1/post/addPost", token,
			map[string]string{"caption": "sunset"}, "image", testutil.TinyPNG(t, 40, 30))
		resp, envelope := ts.do(t, req)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Equal(t, "New Post Added", envelope.Message)

		post := dataMap(t, envelope)
		assert.Equal(t, "sunset", post["caption"])
		image := post["image"].(string)
		assert.True(t, strings.HasPrefix(image, "/media/"), image)
		assert.Equal(t, "alice", post["author"].(map[string]interface{})["username"])

		served, err := ts.app.Test(jsonRequest(http.MethodGet, image, "", ""), -1)
		require.NoError(t, err)
		defer func() { _ = served.Body.Close() }()
		assert.Equal(t, fiber.StatusOK, served.StatusCode)
	})

	t.Run("Appears in listings", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			resp, envelope := ts.do(t, jsonRequest(method, "/api/v1/post/allPosts", "", token))
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Len(t, dataList(t, envelope), 1)

			resp, envelope = ts.do(t, jsonRequest(method, "/api/v1/post/userpost/all", "", token))
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Len(t, dataList(t, envelope), 1)
		}
	})
}

func TestLikeAndDislikeAreIdempotent(t *testing.T) {
	ts := newTestServer(t)
	aliceID, aliceToken := ts.login(t, "alice")
	_, bobToken := ts.login(t, "bob")
	postID := ts.addPost(t, bobToken, "beach")

	for i := 0; i < 2; i++ {
		resp, envelope := ts.do(t, jsonRequest(http.MethodPost, postPath("like", postID), "", aliceToken))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "Like done", envelope.Message)
	}

	resp, envelope := ts.do(t, jsonRequest(http.MethodGet, "/api/v1/post/allPosts", "", aliceToken))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	likes := dataList(t, envelope)[0].(map[string]interface{})["likes"]
	assert.Equal(t, []interface{}{float64(aliceID)}, likes)

	for i := 0; i < 2; i++ {
		resp, envelope := ts.do(t, jsonRequest(http.MethodPost, postPath("dislike", postID), "", aliceToken))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "disLike done", envelope.Message)
	}

	resp, _ = ts.do(t, jsonRequest(http.MethodPost, postPath("like", 9999), "", aliceToken))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestBookmarkToggleHandler(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.login(t, "alice")
	postID := ts.addPost(t, token, "mountains")

	resp, envelope := ts.do(t, jsonRequest(http.MethodPost, postPath("bookmark", postID), "", token))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Post saved to bookmark", envelope.Message)
	assert.Equal(t, string(models.Saved), dataMap(t, envelope)["type"])

	resp, envelope = ts.do(t, jsonRequest(http.MethodPost, postPath("bookmark", postID), "", token))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Post removed from bookmark", envelope.Message)
	assert.Equal(t, string(models.Unsaved), dataMap(t, envelope)["type"])
}

func TestDeletePostHandler(t *testing.T) {
	ts := newTestServer(t)
	_, ownerToken := ts.login(t, "owner")
	_, otherToken := ts.login(t, "intruder")
	postID := ts.addPost(t, ownerToken, "mine")

	resp, _ := ts.do(t, jsonRequest(http.MethodPost, "/api/v1/post/comment/"+strconv.Itoa(int(postID)),
		`{"text":"nice"}`, otherToken))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, envelope := ts.do(t, jsonRequest(http.MethodPost, postPath("delete", postID), "", otherToken))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "You are not authorized to delete this post", envelope.Message)

	resp, envelope = ts.do(t, jsonRequest(http.MethodPost, "/api/v1/post/comment/all/"+strconv.Itoa(int(postID)), "", ownerToken))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, dataList(t, envelope), 1)

	resp, envelope = ts.do(t, jsonRequest(http.MethodPost, postPath("delete", postID), "", ownerToken))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Post deleted", envelope.Message)

	var comments int64
	require.NoError(t, ts.db.Model(&models.Comment{}).Where("post_id = ?", postID).Count(&comments).Error)
	assert.Zero(t, comments)

	resp, _ = ts.do(t, jsonRequest(http.MethodPost, postPath("delete", postID), "", ownerToken))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestFeedsShowOnlyPublicAuthorFields(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.login(t, "alice")
	_, bobToken := ts.login(t, "bob")
	postID := ts.addPost(t, aliceToken, "harbor")
	resp, _ := ts.do(t, jsonRequest(http.MethodPost, postPath("comment", postID), `{"text":"nice"}`, bobToken))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	requests := []*http.Request{
		jsonRequest(http.MethodGet, "/api/v1/post/allPosts", "", bobToken),
		jsonRequest(http.MethodGet, "/api/v1/post/userpost/all", "", aliceToken),
		jsonRequest(http.MethodPost, postPath("comment/all", postID), "", bobToken),
	}
	for _, req := range requests {
		t.Run(req.Method+" "+req.URL.Path, func(t *testing.T) {
			resp, err := ts.app.Test(req, -1)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), `"username"`)
			assert.NotContains(t, string(body), `"email"`)
			assert.NotContains(t, string(body), "@example.com")
		})
	}
}
