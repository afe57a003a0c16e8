// Package middleware provides the authentication gate, logging, tracing,
// metrics and rate limiting for the HTTP server.
package middleware

import (
	"context"
	"log/slog"
	"strings"

	"pixelgram/internal/auth"
	"pixelgram/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "token"

// TokenVerifier verifies a session token and returns its claims.
type TokenVerifier interface {
	Parse(token string) (*auth.Claims, error)
}

// RevocationChecker reports whether a token id was revoked at logout.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthRequired admits a request only with a valid, unexpired, unrevoked
// session token taken from the session cookie or an Authorization bearer
// header. Identity is never read from the request body.
func AuthRequired(tokens TokenVerifier, revocations RevocationChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := extractToken(c)
		if raw == "" {
			return unauthorized(c, "User not authenticated")
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			return unauthorized(c, "Invalid or expired session")
		}

		if revocations != nil {
			revoked, err := revocations.IsRevoked(c.UserContext(), claims.TokenID)
			if err != nil {
				Logger.WarnContext(c.UserContext(), "token revocation check failed",
					slog.String("error", err.Error()))
			} else if revoked {
				return unauthorized(c, "Session has been revoked")
			}
		}

		c.Locals("userID", claims.UserID)
		c.Locals("tokenID", claims.TokenID)
		c.Locals("tokenExpiresAt", claims.ExpiresAt)
		c.SetUserContext(withUser(c.UserContext(), claims.UserID))

		return c.Next()
	}
}

func extractToken(c *fiber.Ctx) string {
	if tok := strings.TrimSpace(c.Cookies(SessionCookie)); tok != "" {
		return tok
	}
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func unauthorized(c *fiber.Ctx, message string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(message))
}
