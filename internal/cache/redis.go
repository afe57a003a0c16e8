package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pixelgram/internal/middleware"
	"pixelgram/internal/observability"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const dialTimeout = 5 * time.Second

// errorHook counts failed commands and marks them on the caller's span.
// A miss (redis.Nil) is not a failure.
type errorHook struct{}

func (errorHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		noteFailure(ctx, cmd.Name(), err)
		return err
	}
}

func (errorHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		noteFailure(ctx, "pipeline", err)
		return err
	}
}

func noteFailure(ctx context.Context, op string, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	observability.RedisErrorRate.WithLabelValues(op).Inc()
	trace.SpanFromContext(ctx).AddEvent("redis.error", trace.WithAttributes(
		attribute.String("redis.command", op),
		attribute.String("error", err.Error()),
	))
}

// Connect dials Redis at url (host:port or redis://) and pings it. It
// returns nil when Redis is unreachable; every consumer treats a nil client
// as running without cache, revocation, rate limits or notifications.
func Connect(ctx context.Context, url string) *redis.Client {
	opts := &redis.Options{Addr: url}
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			middleware.Logger.WarnContext(ctx, "invalid REDIS_URL, running without redis", slog.String("error", err.Error()))
			return nil
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	client.AddHook(errorHook{})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "redis unreachable, running without redis",
			slog.String("addr", opts.Addr), slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	middleware.Logger.InfoContext(ctx, "redis connected", slog.String("addr", opts.Addr))
	return client
}
