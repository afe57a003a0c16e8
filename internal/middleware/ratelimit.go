package middleware

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"pixelgram/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Limit is a fixed-window budget for one write action.
type Limit struct {
	Action string
	Max    int
	Window time.Duration
}

// Budgets for the write endpoints that create accounts, sessions or content.
var (
	RegisterLimit    = Limit{Action: "register", Max: 5, Window: 10 * time.Minute}
	LoginLimit       = Limit{Action: "login", Max: 10, Window: 5 * time.Minute}
	AddPostLimit     = Limit{Action: "add_post", Max: 30, Window: time.Hour}
	SendMessageLimit = Limit{Action: "send_message", Max: 60, Window: time.Minute}
)

var errNoRedis = errors.New("rate limit store unavailable")

// limitsEnforced is false for local and test environments.
func limitsEnforced() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return false
	}
	return true
}

func (l Limit) key(subject string) string {
	return "pixelgram:rl:" + l.Action + ":" + subject
}

// Allow counts one hit by subject. When the budget is spent it returns false
// with the time left in the current window.
func (l Limit) Allow(ctx context.Context, rdb *redis.Client, subject string) (bool, time.Duration, error) {
	if !limitsEnforced() {
		return true, 0, nil
	}
	if rdb == nil {
		return false, 0, errNoRedis
	}

	key := l.key(subject)
	pipe := rdb.TxPipeline()
	hits := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.Window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	if hits.Val() <= int64(l.Max) {
		return true, 0, nil
	}
	return false, ttl.Val(), nil
}

// RateLimit admits requests while the caller is within l. Callers are the
// authenticated user when the auth gate ran first, the client IP otherwise.
// A Redis outage lets requests through.
func RateLimit(rdb *redis.Client, l Limit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(uint); ok {
			subject = "user:" + strconv.FormatUint(uint64(uid), 10)
		}

		ok, retryIn, err := l.Allow(c.UserContext(), rdb, subject)
		if err != nil {
			Logger.DebugContext(c.UserContext(), "rate limit skipped",
				slog.String("action", l.Action), slog.String("error", err.Error()))
			return c.Next()
		}
		if !ok {
			secs := int(retryIn.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			return c.Status(fiber.StatusTooManyRequests).JSON(models.Response{
				Success: false,
				Message: "Too many requests, slow down",
			})
		}
		return c.Next()
	}
}
