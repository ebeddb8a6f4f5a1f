package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	offlinehttp "notesync/internal/offline/adapters/http"
	"notesync/internal/offline/adapters/http/middleware"
	"notesync/internal/offline/connectivity"
	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/notify"
	"notesync/pkg/logger"
)

type panickingNotes struct{}

func (panickingNotes) List(context.Context, entities.ListQuery) (*entities.NotePage, error) {
	panic("list exploded")
}

func (panickingNotes) Get(ctx context.Context, _ string) (*entities.Note, error) {
	requestID, _ := logger.GetRequestID(ctx)
	return &entities.Note{ID: requestID}, nil
}

func (panickingNotes) Create(context.Context, entities.NoteInput) (*entities.Note, error) {
	return nil, nil
}

func (panickingNotes) Update(context.Context, string, entities.NotePatch) (*entities.Note, error) {
	return nil, nil
}

func (panickingNotes) Delete(context.Context, string) error { return nil }

type idleSync struct{}

func (idleSync) Trigger()                             {}
func (idleSync) Syncing() bool                        { return false }
func (idleSync) Pending(context.Context) (int, error) { return 0, nil }

func newRouter() *fiber.App {
	app := fiber.New()
	offlinehttp.SetupRouter(app, offlinehttp.Dependencies{
		Notes: panickingNotes{},
		Sync:  idleSync{},
		Conn:  connectivity.NewMonitor(true),
		Feed:  notify.NewHub(5),
	})
	return app
}

func TestRouterRecoversFromPanic(t *testing.T) {
	resp, err := newRouter().Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/notes", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestRouterPropagatesRequestID(t *testing.T) {
	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/notes/n1", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-42")

	resp, err := newRouter().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-42", resp.Header.Get(middleware.HeaderRequestID))

	var body struct {
		Note entities.Note `json:"note"`
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "req-42", body.Note.ID)
}

func TestRouterGeneratesRequestID(t *testing.T) {
	resp, err := newRouter().Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/status", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.HeaderRequestID))
}

func TestRouterUnknownRoute(t *testing.T) {
	resp, err := newRouter().Test(httptest.NewRequest(fiber.MethodGet, "/api/v2/anything", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
