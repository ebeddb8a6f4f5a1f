package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/notify"
	"notesync/internal/offline/ports/services"
)

var (
	_ services.Notifier         = (*notify.Hub)(nil)
	_ services.NotificationFeed = (*notify.Hub)(nil)
)

func TestHub_PublishAssignsSequence(t *testing.T) {
	ctx := context.Background()
	hub := notify.NewHub(10)

	first := hub.Publish(ctx, entities.Event{Kind: entities.EventSyncStarted, Message: "syncing"})
	second := hub.Publish(ctx, entities.Event{Kind: entities.EventSyncComplete, Message: "done"})

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.False(t, first.At.IsZero())

	recent := hub.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, entities.EventSyncStarted, recent[0].Kind)

	recent = hub.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, entities.EventSyncComplete, recent[0].Kind)

	assert.Empty(t, hub.Recent(2))
}

func TestHub_RecentIsBounded(t *testing.T) {
	ctx := context.Background()
	hub := notify.NewHub(3)

	for range 5 {
		hub.Publish(ctx, entities.Event{Kind: entities.EventSyncPaused})
	}

	recent := hub.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, uint64(3), recent[0].Seq)
	assert.Equal(t, uint64(5), recent[2].Seq)
}

func TestHub_Subscribe(t *testing.T) {
	ctx := context.Background()
	hub := notify.NewHub(0)

	ch, cancel := hub.Subscribe(1)

	hub.Publish(ctx, entities.Event{Kind: entities.EventChangesDiscarded, QueueID: 7})
	// буфер подписчика заполнен, второе уведомление теряется без блокировки
	hub.Publish(ctx, entities.Event{Kind: entities.EventSyncComplete})

	ev := <-ch
	assert.Equal(t, entities.EventChangesDiscarded, ev.Kind)
	assert.Equal(t, int64(7), ev.QueueID)

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	hub.Publish(ctx, entities.Event{Kind: entities.EventWentOnline})
	assert.Len(t, hub.Recent(0), 3)
}
