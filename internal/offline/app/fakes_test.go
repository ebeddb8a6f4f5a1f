package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	redisstore "notesync/internal/offline/adapters/redis"
	"notesync/internal/offline/app"
	"notesync/internal/offline/connectivity"
	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/notify"
	"notesync/internal/offline/ports/remote"
)

// fakeRemote - сервер заметок в памяти.
type fakeRemote struct {
	mu     sync.Mutex
	notes  map[string]*entities.Note
	seq    int
	calls  []string
	keys   []string
	fail   func(op, id string) error
	onCall func(op, id string)
	noIDs  bool
	clock  time.Time
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		notes: make(map[string]*entities.Note),
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func statusError(op string, code int) error {
	class, _ := remote.ClassifyStatus(code)
	return &remote.Error{Class: class, Op: op, StatusCode: code, Message: http.StatusText(code)}
}

func (f *fakeRemote) enter(op, id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op+" "+id)
	hook, fail := f.onCall, f.fail
	f.mu.Unlock()

	if hook != nil {
		hook(op, id)
	}
	if fail != nil {
		return fail(op, id)
	}
	return nil
}

func (f *fakeRemote) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeRemote) ListNotes(_ context.Context, q entities.ListQuery) (*entities.NotePage, error) {
	if err := f.enter("list", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.notes))
	for id := range f.notes {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	notes := make([]*entities.Note, 0, len(ids))
	for _, id := range ids {
		n := *f.notes[id]
		notes = append(notes, &n)
	}
	limit := q.Limit
	if limit == 0 {
		limit = 10
	}
	return entities.Paginate(notes, q.Page, limit), nil
}

func (f *fakeRemote) GetNote(_ context.Context, id string) (*entities.Note, error) {
	if err := f.enter("get", id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.notes[id]
	if !ok {
		return nil, statusError("GetNote", http.StatusNotFound)
	}
	out := *n
	return &out, nil
}

func (f *fakeRemote) CreateNote(_ context.Context, fields json.RawMessage, key string) (*entities.Note, error) {
	if err := f.enter("create", key); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var in entities.NoteInput
	if err := json.Unmarshal(fields, &in); err != nil {
		return nil, statusError("CreateNote", http.StatusBadRequest)
	}

	f.keys = append(f.keys, key)
	if f.noIDs {
		return &entities.Note{Title: in.Title}, nil
	}

	f.seq++
	note := entities.NewLocalNote(fmt.Sprintf("srv-%d", f.seq), in, f.tick())
	f.notes[note.ID] = note
	out := *note
	return &out, nil
}

func (f *fakeRemote) UpdateNote(_ context.Context, id string, fields json.RawMessage) (*entities.Note, error) {
	if err := f.enter("update", id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.notes[id]
	if !ok {
		return nil, statusError("UpdateNote", http.StatusNotFound)
	}
	var patch entities.NotePatch
	if err := json.Unmarshal(fields, &patch); err != nil {
		return nil, statusError("UpdateNote", http.StatusBadRequest)
	}
	n.Apply(patch, f.tick())
	out := *n
	return &out, nil
}

func (f *fakeRemote) DeleteNote(_ context.Context, id string) error {
	if err := f.enter("delete", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.notes[id]; !ok {
		return statusError("DeleteNote", http.StatusNotFound)
	}
	delete(f.notes, id)
	return nil
}

func (f *fakeRemote) Close() error { return nil }

func (f *fakeRemote) put(n *entities.Note) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *n
	f.notes[n.ID] = &cp
}

func (f *fakeRemote) note(id string) *entities.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[id]
	if !ok {
		return nil
	}
	cp := *n
	return &cp
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

type harness struct {
	srv    *miniredis.Miniredis
	store  *redisstore.Store
	api    *fakeRemote
	conn   *connectivity.Monitor
	hub    *notify.Hub
	engine *app.SyncEngine
	svc    *app.NoteService
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()

	srv := miniredis.RunT(t)
	store := redisstore.NewStore(redis.NewClient(&redis.Options{Addr: srv.Addr()}), redisstore.Options{OpTimeout: time.Second})
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	h := &harness{
		srv:   srv,
		store: store,
		api:   newFakeRemote(),
		conn:  connectivity.NewMonitor(online),
		hub:   notify.NewHub(0),
	}
	h.engine = app.NewSyncEngine(h.store, h.api, h.conn, h.hub)
	h.svc = app.NewNoteService(h.store, h.api, h.conn, h.engine)
	return h
}

func (h *harness) putLocal(t *testing.T, id, title string) {
	t.Helper()
	snap, err := (&entities.Note{ID: id, Title: title, UpdatedAt: time.Now().UTC()}).Snapshot()
	require.NoError(t, err)
	require.NoError(t, h.store.PutSnapshot(context.Background(), snap))
}

func (h *harness) enqueue(t *testing.T, kind entities.OperationKind, id string, fields any) *entities.Operation {
	t.Helper()
	payload, err := entities.NewPayload(id, fields)
	require.NoError(t, err)
	op, err := h.store.Enqueue(context.Background(), kind, payload)
	require.NoError(t, err)
	return op
}

func (h *harness) localNote(t *testing.T, id string) *entities.Note {
	t.Helper()
	snap, err := h.store.GetSnapshot(context.Background(), entities.CollectionNotes, id)
	require.NoError(t, err)
	if snap == nil {
		return nil
	}
	n, err := entities.NoteFromSnapshot(snap)
	require.NoError(t, err)
	return n
}

func (h *harness) queue(t *testing.T) []*entities.Operation {
	t.Helper()
	ops, err := h.store.ListQueue(context.Background())
	require.NoError(t, err)
	return ops
}

func (h *harness) events(kind entities.EventKind) []entities.Event {
	var out []entities.Event
	for _, ev := range h.hub.Recent(0) {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func title(s string) map[string]string {
	return map[string]string{"title": s}
}
