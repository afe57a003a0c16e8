package server

import (
	"pixelgram/internal/models"
	"pixelgram/internal/service"

	"github.com/gofiber/fiber/v2"
)

// AddPost handles POST /api/v1/post/addPost
// @Summary Create a post
// @Description Upload an image with an optional caption
// @Tags post
// @Accept mpfd
// @Produce json
// @Param image formData file true "Post image"
// @Param caption formData string false "Caption"
// @Success 201 {object} models.Response{data=models.Post}
// @Failure 400 {object} models.Response
// @Security BearerAuth
// @Router /post/addPost [post]
func (s *Server) AddPost(c *fiber.Ctx) error {
	image, err := formUpload(c, "image")
	if err != nil {
		return models.RespondAppError(c, err)
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		AuthorID: currentUserID(c),
		Caption:  c.FormValue("caption"),
		Image:    image,
	})
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusCreated, "New Post Added", post)
}

// ListPosts handles GET|POST /api/v1/post/allPosts
// @Summary List posts
// @Tags post
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} models.Response{data=[]models.Post}
// @Security BearerAuth
// @Router /post/allPosts [get]
// @Router /post/allPosts [post]
func (s *Server) ListPosts(c *fiber.Ctx) error {
	posts, err := s.postService.ListPosts(c.UserContext(), parsePagination(c))
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, "Get all post done", posts)
}

// ListMyPosts handles GET|POST /api/v1/post/userpost/all
// @Summary List the caller's posts
// @Tags post
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} models.Response
// @Failure 401 {object} models.Response
// @Security BearerAuth
// @Router /post/userpost/all [get]
// @Router /post/userpost/all [post]
func (s *Server) ListMyPosts(c *fiber.Ctx) error {
	posts, err := s.postService.ListUserPosts(c.UserContext(), currentUserID(c), parsePagination(c))
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, "Get user post done", posts)
}

// LikePost handles POST /api/v1/post/like/:id
// @Summary Like a post
// @Tags post
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Response
// @Failure 401 {object} models.Response
// @Failure 404 {object} models.Response
// @Security BearerAuth
// @Router /post/like/{id} [post]
func (s *Server) LikePost(c *fiber.Ctx) error {
	return s.react(c, models.IntentLike, "Like done")
}

// DislikePost handles POST /api/v1/post/dislike/:id
// @Summary Remove a like
// @Tags post
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Response
// @Failure 401 {object} models.Response
// @Failure 404 {object} models.Response
// @Security BearerAuth
// @Router /post/dislike/{id} [post]
func (s *Server) DislikePost(c *fiber.Ctx) error {
	return s.react(c, models.IntentDislike, "disLike done")
}

func (s *Server) react(c *fiber.Ctx, intent models.ReactionIntent, message string) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.LikeOrDislike(c.UserContext(), currentUserID(c), postID, intent); err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, message, nil)
}

// DeletePost handles POST /api/v1/post/delete/:id
// @Summary Delete a post
// @Description Only the author may delete; comments, likes and bookmarks go with it
// @Tags post
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Response
// @Failure 403 {object} models.Response
// @Failure 404 {object} models.Response
// @Security BearerAuth
// @Router /post/delete/{id} [post]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.DeletePost(c.UserContext(), postID, currentUserID(c)); err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, "Post deleted", nil)
}

// BookmarkPost handles POST /api/v1/post/bookmark/:id
// @Summary Toggle a bookmark
// @Tags post
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Response{data=object{type=string}}
// @Failure 404 {object} models.Response
// @Security BearerAuth
// @Router /post/bookmark/{id} [post]
func (s *Server) BookmarkPost(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	action, err := s.postService.BookmarkToggle(c.UserContext(), currentUserID(c), postID)
	if err != nil {
		return models.RespondAppError(c, err)
	}

	message := "Post saved to bookmark"
	if action == models.Unsaved {
		message = "Post removed from bookmark"
	}
	return models.Respond(c, fiber.StatusOK, message, fiber.Map{"type": action})
}
