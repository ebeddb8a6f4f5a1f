package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "notesync/internal/offline/adapters/redis"
	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/ports/repositories"
)

func newStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	store := redisstore.NewStore(client, redisstore.Options{Prefix: "test", OpTimeout: time.Second})
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	return store, srv
}

func snapshot(id, title string, updatedAt time.Time) *entities.Snapshot {
	data, _ := json.Marshal(map[string]string{"id": id, "title": title})
	return &entities.Snapshot{
		Collection: entities.CollectionNotes,
		ID:         id,
		Data:       data,
		UpdatedAt:  updatedAt,
	}
}

func TestStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := store.GetSnapshot(ctx, entities.CollectionNotes, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.PutSnapshot(ctx, snapshot("a", "A", base)))
	require.NoError(t, store.PutSnapshot(ctx, snapshot("b", "B", base.Add(time.Minute))))
	require.NoError(t, store.PutSnapshot(ctx, snapshot("c", "C", base.Add(-time.Minute))))

	got, err = store.GetSnapshot(ctx, entities.CollectionNotes, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"id":"a","title":"A"}`, string(got.Data))
	assert.True(t, base.Equal(got.UpdatedAt))

	list, err := store.ListSnapshots(ctx, entities.CollectionNotes)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})

	// перезапись с новым временем меняет порядок
	require.NoError(t, store.PutSnapshot(ctx, snapshot("c", "C2", base.Add(time.Hour))))
	list, err = store.ListSnapshots(ctx, entities.CollectionNotes)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)

	require.NoError(t, store.DeleteSnapshot(ctx, entities.CollectionNotes, "a"))
	require.NoError(t, store.DeleteSnapshot(ctx, entities.CollectionNotes, "a"))

	got, err = store.GetSnapshot(ctx, entities.CollectionNotes, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	other, err := store.ListSnapshots(ctx, entities.CollectionTags)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_PutSnapshotInvalid(t *testing.T) {
	store, _ := newStore(t)

	err := store.PutSnapshot(context.Background(), &entities.Snapshot{Collection: entities.CollectionNotes})
	assert.ErrorIs(t, err, entities.ErrInvalidSnapshot)
}

func TestStore_QueueOrdering(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	head, err := store.Head(ctx)
	require.NoError(t, err)
	assert.Nil(t, head)

	first, err := store.Enqueue(ctx, entities.OperationCreate, entities.Payload{ID: "tmp-1", Fields: json.RawMessage(`{"title":"A"}`)})
	require.NoError(t, err)
	second, err := store.Enqueue(ctx, entities.OperationUpdate, entities.Payload{ID: "tmp-1", Fields: json.RawMessage(`{"title":"A2"}`)})
	require.NoError(t, err)
	third, err := store.Enqueue(ctx, entities.OperationDelete, entities.Payload{ID: "n1"})
	require.NoError(t, err)

	assert.Less(t, first.QueueID, second.QueueID)
	assert.Less(t, second.QueueID, third.QueueID)
	assert.False(t, first.EnqueuedAt.IsZero())

	queue, err := store.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, first.QueueID, queue[0].QueueID)
	assert.Equal(t, entities.OperationUpdate, queue[1].Kind)
	assert.JSONEq(t, `{"title":"A2"}`, string(queue[1].Payload.Fields))
	assert.Equal(t, "n1", queue[2].Payload.ID)

	head, err = store.Head(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, first.QueueID, head.QueueID)

	require.NoError(t, store.Remove(ctx, first.QueueID))
	require.NoError(t, store.Remove(ctx, first.QueueID))

	head, err = store.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.QueueID, head.QueueID)

	queue, err = store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 2)

	// после удаления номера не переиспользуются
	fourth, err := store.Enqueue(ctx, entities.OperationDelete, entities.Payload{ID: "n2"})
	require.NoError(t, err)
	assert.Greater(t, fourth.QueueID, third.QueueID)
}

func TestStore_EnqueueInvalid(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Enqueue(context.Background(), entities.OperationKind("PATCH"), entities.Payload{ID: "x"})
	assert.ErrorIs(t, err, entities.ErrInvalidOperation)

	_, err = store.Enqueue(context.Background(), entities.OperationDelete, entities.Payload{})
	assert.ErrorIs(t, err, entities.ErrInvalidOperation)
}

func TestStore_RewriteIDAndPending(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	create, err := store.Enqueue(ctx, entities.OperationCreate, entities.Payload{ID: "tmp-1"})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, entities.OperationUpdate, entities.Payload{ID: "tmp-1", Fields: json.RawMessage(`{"title":"A2"}`)})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, entities.OperationDelete, entities.Payload{ID: "tmp-2"})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, entities.OperationDelete, entities.Payload{ID: "tmp-1"})
	require.NoError(t, err)

	pending, err := store.HasPending(ctx, "tmp-1")
	require.NoError(t, err)
	assert.True(t, pending)

	n, err := store.RewriteID(ctx, "tmp-1", "srv-1", create.QueueID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	queue, err := store.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 4)
	assert.Equal(t, "tmp-1", queue[0].Payload.ID)
	assert.Equal(t, "srv-1", queue[1].Payload.ID)
	assert.JSONEq(t, `{"title":"A2"}`, string(queue[1].Payload.Fields))
	assert.Equal(t, "tmp-2", queue[2].Payload.ID)
	assert.Equal(t, "srv-1", queue[3].Payload.ID)

	n, err = store.RewriteID(ctx, "nope", "srv-9", 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err = store.HasPending(ctx, "srv-1")
	require.NoError(t, err)
	assert.True(t, pending)

	pending, err = store.HasPending(ctx, "srv-2")
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestStore_CompleteCreate(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.PutSnapshot(ctx, snapshot("tmp-1", "A", now)))
	create, err := store.Enqueue(ctx, entities.OperationCreate, entities.Payload{ID: "tmp-1"})
	require.NoError(t, err)
	update, err := store.Enqueue(ctx, entities.OperationUpdate, entities.Payload{ID: "tmp-1"})
	require.NoError(t, err)

	n, err := store.CompleteCreate(ctx, repositories.CreateCompletion{
		QueueID:  create.QueueID,
		LocalID:  "tmp-1",
		Snapshot: snapshot("srv-1", "A", now),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	local, err := store.GetSnapshot(ctx, entities.CollectionNotes, "tmp-1")
	require.NoError(t, err)
	assert.Nil(t, local)

	server, err := store.GetSnapshot(ctx, entities.CollectionNotes, "srv-1")
	require.NoError(t, err)
	require.NotNil(t, server)

	head, err := store.Head(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, update.QueueID, head.QueueID)
	assert.Equal(t, "srv-1", head.Payload.ID)

	resolved, err := store.ResolveAlias(ctx, "tmp-1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", resolved)

	resolved, err = store.ResolveAlias(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", resolved)

	list, err := store.ListSnapshots(ctx, entities.CollectionNotes)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "srv-1", list[0].ID)
}

func TestStore_Aliases(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	require.NoError(t, store.RecordAlias(ctx, "local-1", "srv-1"))

	id, err := store.ResolveAlias(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", id)

	id, err = store.ResolveAlias(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "other", id)
}

func TestStore_Persistence(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)

	first := redisstore.NewStore(redis.NewClient(&redis.Options{Addr: srv.Addr()}), redisstore.Options{})
	op, err := first.Enqueue(ctx, entities.OperationDelete, entities.Payload{ID: "n1"})
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second := redisstore.NewStore(redis.NewClient(&redis.Options{Addr: srv.Addr()}), redisstore.Options{})
	defer second.Close(ctx)

	head, err := second.Head(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, op.QueueID, head.QueueID)
}

func TestStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	store, srv := newStore(t)

	srv.Close()

	_, err := store.Head(ctx)
	assert.ErrorIs(t, err, repositories.ErrStorageUnavailable)

	_, err = store.Enqueue(ctx, entities.OperationDelete, entities.Payload{ID: "n1"})
	assert.ErrorIs(t, err, repositories.ErrStorageUnavailable)

	err = store.PutSnapshot(ctx, snapshot("a", "A", time.Now()))
	assert.ErrorIs(t, err, repositories.ErrStorageUnavailable)

	_, err = store.RewriteID(ctx, "a", "b", 0)
	assert.ErrorIs(t, err, repositories.ErrStorageUnavailable)

	_, err = store.ResolveAlias(ctx, "a")
	assert.ErrorIs(t, err, repositories.ErrStorageUnavailable)
}

func TestStore_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store, srv := newStore(t)

	srv.HSet("test:queue:ops", "1", "{not json")
	_, err := srv.ZAdd("test:queue", 1, "1")
	require.NoError(t, err)

	_, err = store.Head(ctx)
	assert.ErrorIs(t, err, repositories.ErrStorageUnavailable)
}
