// Package notifications publishes content lifecycle events to Redis channels
// for out-of-process consumers.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"folio/internal/middleware"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventPostSubmitted      EventType = "post_submitted"
	EventPostApproved       EventType = "post_approved"
	EventPostRejected       EventType = "post_rejected"
	EventPostDeleted        EventType = "post_deleted"
	EventCommentCreated     EventType = "comment_created"
	EventCommentDeleted     EventType = "comment_deleted"
	EventAccountDeactivated EventType = "account_deactivated"
)

const (
	channelPrefix  = "folio:events:"
	channelPattern = channelPrefix + "*"
)

// Event is the payload published for every lifecycle change.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	ActorID    uint              `json:"actor_id"`
	PostID     uint              `json:"post_id,omitempty"`
	CommentID  uint              `json:"comment_id,omitempty"`
	UserID     uint              `json:"user_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Channel returns the Redis channel an event type is published on.
func Channel(t EventType) string {
	return channelPrefix + string(t)
}

// Notifier publishes events into Redis channels.
type Notifier struct {
	rdb *redis.Client
	now func() time.Time
}

// NewNotifier creates a new Notifier. A nil client turns publishing into a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, now: time.Now}
}

// Publish stamps evt with an id and time when missing and sends it.
func (n *Notifier) Publish(ctx context.Context, evt Event) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = n.now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.rdb.Publish(ctx, Channel(evt.Type), payload).Err()
}

// Subscribe delivers every published event to onEvent until ctx is done.
// Malformed payloads are logged and skipped.
func (n *Notifier) Subscribe(ctx context.Context, onEvent func(Event)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, channelPattern)
	// wait for the subscription to be confirmed so no early events are lost
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", channelPattern, err)
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
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					middleware.Logger.Warn("Dropping malformed event",
						slog.String("channel", msg.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("Panic in event subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onEvent(evt)
				}()
			}
		}
	}()

	return nil
}
