package server

import (
	"pixelgram/internal/models"
	"pixelgram/internal/service"

	"github.com/gofiber/fiber/v2"
)

// AddComment handles POST /api/v1/post/comment/:id
// @Summary Comment on a post
// @Tags comment
// @Accept json
// @Produce json
// @Param id path int true "Post ID"
// @Param request body object{text=string} true "Comment"
// @Success 201 {object} models.Response{data=models.Comment}
// @Failure 400 {object} models.Response
// @Failure 404 {object} models.Response
// @Security BearerAuth
// @Router /post/comment/{id} [post]
func (s *Server) AddComment(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Text string `json:"text" form:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := s.commentService.AddComment(c.UserContext(), service.AddCommentInput{
		PostID:   postID,
		AuthorID: currentUserID(c),
		Text:     req.Text,
	})
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusCreated, "Comment added", comment)
}

// ListComments handles POST /api/v1/post/comment/all/:id. A post without
// comments answers 200 with an empty list.
// @Summary List a post's comments
// @Tags comment
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Response
// @Failure 401 {object} models.Response
// @Failure 404 {object} models.Response
// @Security BearerAuth
// @Router /post/comment/all/{id} [post]
func (s *Server) ListComments(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	comments, err := s.commentService.ListComments(c.UserContext(), postID)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, "Get comments done", comments)
}
