package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pixelgram/internal/config"
	"pixelgram/internal/models"
	"pixelgram/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	*Server
	app   *fiber.App
	redis *miniredis.Miniredis
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Port:                 "0",
		Env:                  "test",
		JWTSecret:            testutil.TestJWTSecret,
		SessionTTLHours:      24,
		StoreTimeoutMS:       2000,
		StoreRetryAttempts:   3,
		AllowedOrigins:       "http://localhost:5173",
		MediaDir:             t.TempDir(),
		MediaBaseURL:         "/media",
		ImageMaxUploadSizeMB: 2,
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithDB(t, testutil.NewTestDB(t))
}

func newTestServerWithDB(t *testing.T, db *gorm.DB) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s, err := NewServerWithDeps(testConfig(t), db, rdb)
	require.NoError(t, err)
	s.userService.WithPasswordCost(4)
	return &testServer{Server: s, app: s.NewApp(), redis: mr}
}

// do runs req through the app and decodes the envelope.
func (ts *testServer) do(t *testing.T, req *http.Request) (*http.Response, models.Response) {
	t.Helper()
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var envelope models.Response
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &envelope), "body: %s", body)
	}
	return resp, envelope
}

func jsonRequest(method, target, body, token string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}
	return req
}

func multipartRequest(t *testing.T, target, token string, fields map[string]string, fileField string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + fileField + `"; filename="upload.png"`}
		h["Content-Type"] = []string{"image/png"}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}
	return req
}

// login registers username and returns its user id and session token.
func (ts *testServer) login(t *testing.T, username string) (uint, string) {
	t.Helper()
	resp, _ := ts.do(t, jsonRequest(http.MethodPost, "/api/v1/user/register",
		`{"username":"`+username+`","email":"`+username+`@example.com","password":"password123"}`, ""))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, envelope := ts.do(t, jsonRequest(http.MethodPost, "/api/v1/user/login",
		`{"email":"`+username+`@example.com","password":"password123"}`, ""))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == "token" {
			token = c.Value
		}
	}
	require.NotEmpty(t, token)

	user := envelope.Data.(map[string]interface{})
	return uint(user["id"].(float64)), token
}

func dataMap(t *testing.T, envelope models.Response) map[string]interface{} {
	t.Helper()
	m, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", envelope.Data)
	return m
}

func dataList(t *testing.T, envelope models.Response) []interface{} {
	t.Helper()
	l, ok := envelope.Data.([]interface{})
	require.True(t, ok, "data is %T", envelope.Data)
	return l
}
