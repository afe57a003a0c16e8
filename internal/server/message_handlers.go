package server

import (
	"pixelgram/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SendMessage handles POST /api/v1/message/send/:id
// @Summary Send a direct message
// @Tags message
// @Accept json
// @Produce json
// @Param id path int true "Receiver user ID"
// @Param Idempotency-Key header string false "Client key for safe resends (max 64 chars)"
// @Param request body object{message=string} true "Message"
// @Success 201 {object} models.Response{data=models.Message}
// @Failure 400 {object} models.Response
// @Failure 404 {object} models.Response
// @Security BearerAuth
// @Router /message/send/{id} [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	receiverID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Message string `json:"message" form:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	msg, err := s.messageService.SendMessageOnce(c.UserContext(), currentUserID(c), receiverID,
		req.Message, c.Get("Idempotency-Key"))
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusCreated, "Message sent", msg)
}

// GetMessages handles GET /api/v1/message/all/:id
// @Summary Fetch a conversation
// @Description Messages with the given user in send order; empty when none exist
// @Tags message
// @Produce json
// @Param id path int true "Other user ID"
// @Success 200 {object} models.Response{data=[]models.Message}
// @Security BearerAuth
// @Router /message/all/{id} [get]
func (s *Server) GetMessages(c *fiber.Ctx) error {
	otherID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	messages, err := s.messageService.GetMessages(c.UserContext(), currentUserID(c), otherID)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, "", messages)
}
