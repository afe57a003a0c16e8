package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pixelgram/internal/auth"
	"pixelgram/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// observedApp wires the request chain the server uses around a route with
// an id parameter, recording spans and JSON log lines.
func observedApp(t *testing.T) (*fiber.App, *tracetest.SpanRecorder, *bytes.Buffer, string) {
	t.Helper()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prevTracer := observability.Tracer
	observability.Tracer = tp.Tracer("middleware-test")

	var logs bytes.Buffer
	prevLogger := Logger
	Logger = slog.New(scopeHandler{slog.NewJSONHandler(&logs, nil)})

	t.Cleanup(func() {
		observability.Tracer = prevTracer
		Logger = prevLogger
		_ = tp.Shutdown(t.Context())
	})

	tokens := auth.NewTokenManager(testSecret, time.Hour)
	tok, _, err := tokens.Issue(77)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(requestid.New())
	app.Use(RequestScope())
	app.Use(TracingMiddleware())
	app.Use(StructuredLogger())
	app.Get("/posts/:id", AuthRequired(tokens, nil), func(c *fiber.Ctx) error {
		Logger.InfoContext(c.UserContext(), "loading post")
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/broken", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusInternalServerError)
	})
	return app, rec, &logs, tok
}

func TestTracingMiddleware_NamesSpanByRouteAndUser(t *testing.T) {
	app, rec, _, tok := observedApp(t)

	req := httptest.NewRequest(http.MethodGet, "/posts/42", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tok})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/broken", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	ended := rec.Ended()
	require.Len(t, ended, 2)

	post := ended[0]
	assert.Equal(t, "GET /posts/:id", post.Name())
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range post.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "/posts/:id", attrs["http.route"].AsString())
	assert.Equal(t, "/posts/42", attrs["url.path"].AsString())
	assert.Equal(t, int64(77), attrs["user.id"].AsInt64())
	assert.NotEqual(t, codes.Error, post.Status().Code)

	broken := ended[1]
	assert.Equal(t, "GET /broken", broken.Name())
	assert.Equal(t, codes.Error, broken.Status().Code)
	for _, kv := range broken.Attributes() {
		assert.NotEqual(t, attribute.Key("user.id"), kv.Key)
	}
}

func TestStructuredLogger_RecordsCarryRequestScope(t *testing.T) {
	app, _, logs, tok := observedApp(t)

	req := httptest.NewRequest(http.MethodGet, "/posts/42", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tok})
	resp, err := app.Test(req)
	require.NoError(t, err)
	traceID := resp.Header.Get("X-Trace-ID")

	var lines []map[string]interface{}
	sc := bufio.NewScanner(logs)
	for sc.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)

	inner, access := lines[0], lines[1]
	assert.Equal(t, "loading post", inner["msg"])
	assert.Equal(t, "request", access["msg"])
	assert.Equal(t, "/posts/:id", access["route"])
	assert.Equal(t, float64(fiber.StatusNoContent), access["status"])
	for _, line := range lines {
		assert.Equal(t, float64(77), line["user_id"])
		assert.Equal(t, traceID, line["trace_id"])
		assert.NotEmpty(t, line["request_id"])
	}
}

func TestStructuredLogger_ClientErrorsLogAtWarn(t *testing.T) {
	app, _, logs, _ := observedApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/posts/42", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var access map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &access))
	assert.Equal(t, "WARN", access["level"])
	assert.NotContains(t, access, "user_id")
}
