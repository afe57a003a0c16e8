package server

import (
	"fmt"

	"pixelgram/internal/middleware"
	"pixelgram/internal/models"
	"pixelgram/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Register handles POST /api/v1/user/register
// @Summary Register
// @Description Create a new account
// @Tags user
// @Accept json
// @Produce json
// @Param request body object{username=string,email=string,password=string} true "Registration request"
// @Success 201 {object} models.Response
// @Failure 400 {object} models.Response
// @Router /user/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username" form:"username"`
		Email    string `json:"email" form:"email"`
		Password string `json:"password" form:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	_, err := s.userService.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusCreated, "User registered successfully", nil)
}

// Login handles POST /api/v1/user/login
// @Summary Login
// @Description Verify credentials and set the session cookie
// @Tags user
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} models.Response{data=models.User}
// @Failure 400 {object} models.Response
// @Failure 401 {object} models.Response
// @Router /user/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email" form:"email"`
		Password string `json:"password" form:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	session, err := s.userService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.RespondAppError(c, err)
	}

	s.setSessionCookie(c, session.Token, session.ExpiresAt)
	return models.Respond(c, fiber.StatusOK, fmt.Sprintf("Welcome %s", session.User.Username), session.User)
}

// Logout handles GET /api/v1/user/logout
// @Summary Logout
// @Tags user
// @Produce json
// @Success 200 {object} models.Response
// @Router /user/logout [get]
func (s *Server) Logout(c *fiber.Ctx) error {
	if raw := c.Cookies(middleware.SessionCookie); raw != "" {
		if claims, err := s.tokens.Parse(raw); err == nil {
			s.userService.Logout(c.UserContext(), claims.TokenID, claims.ExpiresAt)
		}
	}
	s.clearSessionCookie(c)
	return models.Respond(c, fiber.StatusOK, "Logged out successfully", nil)
}

// GetProfile handles GET /api/v1/user/MyProfile/:id
// @Summary Get a profile
// @Tags user
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.Response{data=models.User}
// @Failure 404 {object} models.Response
// @Security BearerAuth
// @Router /user/MyProfile/{id} [get]
func (s *Server) GetProfile(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userService.GetProfile(c.UserContext(), id)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, "", user)
}

// EditProfile handles POST /api/v1/user/MyProfile/edit
// @Summary Edit the caller's profile
// @Tags user
// @Accept mpfd
// @Produce json
// @Param bio formData string false "Bio"
// @Param gender formData string false "Gender"
// @Param profilePicture formData file false "Avatar"
// @Success 200 {object} models.Response
// @Failure 400 {object} models.Response
// @Failure 401 {object} models.Response
// @Security BearerAuth
// @Router /user/MyProfile/edit [post]
func (s *Server) EditProfile(c *fiber.Ctx) error {
	avatar, err := formUpload(c, "profilePicture")
	if err != nil {
		return models.RespondAppError(c, err)
	}

	user, err := s.userService.EditProfile(c.UserContext(), service.EditProfileInput{
		UserID: currentUserID(c),
		Bio:    c.FormValue("bio"),
		Gender: c.FormValue("gender"),
		Avatar: avatar,
	})
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, "Profile updated successfully", user)
}

// SuggestedUsers handles GET /api/v1/user/suggested
// @Summary List other users
// @Tags user
// @Produce json
// @Success 200 {object} models.Response
// @Failure 401 {object} models.Response
// @Security BearerAuth
// @Router /user/suggested [get]
func (s *Server) SuggestedUsers(c *fiber.Ctx) error {
	users, err := s.userService.SuggestedUsers(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return models.Respond(c, fiber.StatusOK, "", users)
}

// FollowOrUnfollow handles POST /api/v1/user/followorunfollow/:id
// @Summary Follow or unfollow a user
// @Tags user
// @Produce json
// @Param id path int true "Target user ID"
// @Success 200 {object} models.Response{data=object{action=string}}
// @Failure 400 {object} models.Response
// @Failure 404 {object} models.Response
// @Security BearerAuth
// @Router /user/followorunfollow/{id} [post]
func (s *Server) FollowOrUnfollow(c *fiber.Ctx) error {
	targetID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	action, err := s.userService.FollowOrUnfollow(c.UserContext(), currentUserID(c), targetID)
	if err != nil {
		return models.RespondAppError(c, err)
	}

	message := "Followed successfully"
	if action == models.Unfollowed {
		message = "Unfollowed successfully"
	}
	return models.Respond(c, fiber.StatusOK, message, fiber.Map{"action": action})
}
