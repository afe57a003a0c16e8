// Package notifications publishes user-facing events to Redis so a
// real-time delivery layer can push them to clients.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"pixelgram/internal/featureflags"
	"pixelgram/internal/middleware"
	"pixelgram/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Event types published on user channels.
const (
	EventPostLiked       = "post_liked"
	EventPostDisliked    = "post_disliked"
	EventCommented       = "post_commented"
	EventMessageReceived = "message_received"
	EventFollowed        = "followed"
)

// Event is the JSON payload published to a user's channel.
type Event struct {
	Type      string    `json:"type"`
	ActorID   uint      `json:"actor_id"`
	PostID    uint      `json:"post_id,omitempty"`
	MessageID uint      `json:"message_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier publishes events into per-user Redis channels. It is a no-op
// without Redis or when the realtime_notifications flag is off for the
// recipient.
type Notifier struct {
	rdb   *redis.Client
	flags *featureflags.Manager
}

// NewNotifier creates a Notifier. rdb and flags may be nil.
func NewNotifier(rdb *redis.Client, flags *featureflags.Manager) *Notifier {
	return &Notifier{rdb: rdb, flags: flags}
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return "notifications:user:" + strconv.FormatUint(uint64(userID), 10)
}

// Notify publishes ev to recipient. Delivery is best effort: failures are
// logged and counted, never returned, so they cannot fail the mutation
// that produced the event.
func (n *Notifier) Notify(ctx context.Context, recipient uint, ev Event) {
	if n == nil || n.rdb == nil || recipient == 0 || recipient == ev.ActorID {
		return
	}
	if n.flags != nil && !n.flags.Enabled(featureflags.RealtimeNotifications, recipient) {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	if err := n.publish(ctx, recipient, ev); err != nil {
		observability.NotificationsPublished.WithLabelValues(ev.Type, "error").Inc()
		middleware.Logger.WarnContext(ctx, "notification publish failed",
			slog.String("type", ev.Type),
			slog.Uint64("recipient", uint64(recipient)),
			slog.String("error", err.Error()))
		return
	}
	observability.NotificationsPublished.WithLabelValues(ev.Type, "ok").Inc()
}

func (n *Notifier) publish(ctx context.Context, recipient uint, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.rdb.Publish(ctx, UserChannel(recipient), payload).Err()
}

// Subscribe listens on every user channel and calls onEvent until ctx is
// done. A panicking handler is recovered and logged.
func (n *Notifier) Subscribe(ctx context.Context, onEvent func(userID uint, ev Event)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "notifications:user:*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				dispatch(msg, onEvent)
			}
		}
	}()
	return nil
}

func dispatch(msg *redis.Message, onEvent func(uint, Event)) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("panic in notification subscriber",
				slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	var userID uint64
	if _, err := fmt.Sscanf(msg.Channel, "notifications:user:%d", &userID); err != nil {
		return
	}
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		return
	}
	onEvent(uint(userID), ev)
}
