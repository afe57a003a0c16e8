package middleware

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process-wide structured logger. Records logged with a
// request context carry that request's ids.
var Logger = NewLogger(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

type scopeKey struct{}

// requestScope collects the identifiers of one request. RequestScope installs
// it first; tracing and the auth gate fill their fields in place, so records
// logged before authentication still pick up the user once it is known.
type requestScope struct {
	requestID string
	traceID   string
	userID    uint
}

func scopeFrom(ctx context.Context) *requestScope {
	s, _ := ctx.Value(scopeKey{}).(*requestScope)
	return s
}

// withUser records the authenticated user on ctx's request scope.
func withUser(ctx context.Context, userID uint) context.Context {
	if s := scopeFrom(ctx); s != nil {
		s.userID = userID
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, &requestScope{userID: userID})
}

// UserIDFrom returns the user the auth gate admitted for ctx's request.
func UserIDFrom(ctx context.Context) (uint, bool) {
	if s := scopeFrom(ctx); s != nil && s.userID != 0 {
		return s.userID, true
	}
	return 0, false
}

type scopeHandler struct {
	slog.Handler
}

func (h scopeHandler) Handle(ctx context.Context, r slog.Record) error {
	if s := scopeFrom(ctx); s != nil {
		if s.requestID != "" {
			r.AddAttrs(slog.String("request_id", s.requestID))
		}
		if s.traceID != "" {
			r.AddAttrs(slog.String("trace_id", s.traceID))
		}
		if s.userID != 0 {
			r.AddAttrs(slog.Uint64("user_id", uint64(s.userID)))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h scopeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return scopeHandler{h.Handler.WithAttrs(attrs)}
}

func (h scopeHandler) WithGroup(name string) slog.Handler {
	return scopeHandler{h.Handler.WithGroup(name)}
}

// NewLogger builds the scope-aware logger: JSON in production, text elsewhere.
func NewLogger(env, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if env == "production" || env == "prod" {
		return slog.New(scopeHandler{slog.NewJSONHandler(os.Stdout, opts)})
	}
	return slog.New(scopeHandler{slog.NewTextHandler(os.Stdout, opts)})
}

// RequestScope starts the request's log scope from the request id. It must
// run after requestid and before tracing and the auth gate.
func RequestScope() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid, _ := c.Locals("requestid").(string)
		c.SetUserContext(context.WithValue(c.UserContext(), scopeKey{}, &requestScope{requestID: rid}))
		return c.Next()
	}
}

// StructuredLogger writes one access record per request, keyed by the
// matched route so ids in the path do not fan out. 5xx logs at error, 4xx at
// warn.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("route", c.Route().Path),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}
		level := slog.LevelInfo
		switch {
		case err != nil || status >= fiber.StatusInternalServerError:
			level = slog.LevelError
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		}
		Logger.LogAttrs(c.UserContext(), level, "request", attrs...)
		return err
	}
}
