package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilClientIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.Publish(context.Background(), Event{Type: EventPostApproved}))
	assert.NoError(t, n.Subscribe(context.Background(), func(Event) {}))

	var unset *Notifier
	assert.NoError(t, unset.Publish(context.Background(), Event{Type: EventPostApproved}))
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "folio:events:post_approved", Channel(EventPostApproved))
	assert.Equal(t, "folio:events:account_deactivated", Channel(EventAccountDeactivated))
}

func TestNotifier_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 2)
	require.NoError(t, n.Subscribe(ctx, func(evt Event) { events <- evt }))

	require.NoError(t, n.Publish(ctx, Event{Type: EventPostApproved, ActorID: 1, PostID: 7}))
	require.NoError(t, rdb.Publish(ctx, Channel(EventPostDeleted), "not json").Err())
	require.NoError(t, n.Publish(ctx, Event{
		ID:         "fixed-id",
		Type:       EventPostRejected,
		PostID:     8,
		Attributes: map[string]string{"reason": "spam"},
	}))

	select {
	case evt := <-events:
		assert.Equal(t, EventPostApproved, evt.Type)
		assert.Equal(t, uint(7), evt.PostID)
		assert.Len(t, evt.ID, 36)
		assert.True(t, fixed.Equal(evt.OccurredAt))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for approved event")
	}

	select {
	case evt := <-events:
		assert.Equal(t, "fixed-id", evt.ID)
		assert.Equal(t, "spam", evt.Attributes["reason"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rejected event")
	}
}
