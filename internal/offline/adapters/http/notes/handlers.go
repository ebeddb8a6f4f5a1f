// Package notes содержит HTTP-обработчики заметок локального API.
package notes

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"notesync/internal/offline/adapters/http/response"
	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/ports/services"
	"notesync/pkg/logger"
)

// Константы сообщений для логирования и ответов.
const (
	LogHandlerCreateNote = "handling create note request"
	LogHandlerGetNote    = "handling get note request"
	LogHandlerListNotes  = "handling list notes request"
	LogHandlerUpdateNote = "handling update note request"
	LogHandlerDeleteNote = "handling delete note request"

	ErrMsgInvalidNoteID      = "invalid note id"
	ErrMsgInvalidPagination  = "invalid pagination parameters"
	ErrMsgInvalidRequestBody = "invalid request body"
	ErrMsgEmptyPatch         = "nothing to update"
)

// Handler обрабатывает HTTP-запросы к заметкам.
type Handler struct {
	notes services.NoteService
}

// NewHandler создает обработчик заметок.
func NewHandler(notes services.NoteService) *Handler {
	return &Handler{notes: notes}
}

// Register подключает маршруты заметок к группе.
func (h *Handler) Register(router fiber.Router) {
	router.Get("/", h.ListNotes)
	router.Post("/", h.CreateNote)
	router.Get("/:note_id", h.GetNote)
	router.Put("/:note_id", h.UpdateNote)
	router.Patch("/:note_id", h.UpdateNote)
	router.Delete("/:note_id", h.DeleteNote)
}

// CreateNote создает заметку.
func (h *Handler) CreateNote(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx).With(zap.String("handler", "Handler.CreateNote"))
	log.Debug(requestCtx, LogHandlerCreateNote)

	var req entities.NoteInput
	if err := ctx.Bind().Body(&req); err != nil {
		log.Debug(requestCtx, ErrMsgInvalidRequestBody, zap.Error(err))
		return response.Fail(ctx, fiber.StatusBadRequest, ErrMsgInvalidRequestBody)
	}

	note, err := h.notes.Create(requestCtx, req)
	if err != nil {
		log.Error(requestCtx, "failed to create note", zap.Error(err))
		return response.Error(ctx, err)
	}

	return response.JSON(ctx, fiber.StatusCreated, fiber.Map{"note": note})
}

// GetNote возвращает заметку по идентификатору.
func (h *Handler) GetNote(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx).With(zap.String("handler", "Handler.GetNote"))
	log.Debug(requestCtx, LogHandlerGetNote)

	noteID := ctx.Params("note_id")
	if noteID == "" {
		return response.Fail(ctx, fiber.StatusBadRequest, ErrMsgInvalidNoteID)
	}

	note, err := h.notes.Get(requestCtx, noteID)
	if err != nil {
		log.Error(requestCtx, "failed to get note", zap.String("noteID", noteID), zap.Error(err))
		return response.Error(ctx, err)
	}

	return response.JSON(ctx, fiber.StatusOK, fiber.Map{"note": note})
}

// ListNotes возвращает страницу заметок.
func (h *Handler) ListNotes(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx).With(zap.String("handler", "Handler.ListNotes"))
	log.Debug(requestCtx, LogHandlerListNotes)

	page, err := intQuery(ctx, "page")
	if err != nil {
		return response.Fail(ctx, fiber.StatusBadRequest, ErrMsgInvalidPagination)
	}
	limit, err := intQuery(ctx, "limit")
	if err != nil {
		return response.Fail(ctx, fiber.StatusBadRequest, ErrMsgInvalidPagination)
	}

	result, err := h.notes.List(requestCtx, entities.ListQuery{
		Page:       page,
		Limit:      limit,
		Search:     ctx.Query("search"),
		CategoryID: ctx.Query("categoryId"),
		TagID:      ctx.Query("tagId"),
	})
	if err != nil {
		log.Error(requestCtx, "failed to list notes", zap.Error(err))
		return response.Error(ctx, err)
	}

	return response.JSON(ctx, fiber.StatusOK, result)
}

// UpdateNote частично обновляет заметку.
func (h *Handler) UpdateNote(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx).With(zap.String("handler", "Handler.UpdateNote"))
	log.Debug(requestCtx, LogHandlerUpdateNote)

	noteID := ctx.Params("note_id")
	if noteID == "" {
		return response.Fail(ctx, fiber.StatusBadRequest, ErrMsgInvalidNoteID)
	}

	var patch entities.NotePatch
	if err := ctx.Bind().Body(&patch); err != nil {
		log.Debug(requestCtx, ErrMsgInvalidRequestBody, zap.Error(err))
		return response.Fail(ctx, fiber.StatusBadRequest, ErrMsgInvalidRequestBody)
	}
	if patch.IsEmpty() {
		return response.Fail(ctx, fiber.StatusBadRequest, ErrMsgEmptyPatch)
	}

	note, err := h.notes.Update(requestCtx, noteID, patch)
	if err != nil {
		log.Error(requestCtx, "failed to update note", zap.String("noteID", noteID), zap.Error(err))
		return response.Error(ctx, err)
	}

	return response.JSON(ctx, fiber.StatusOK, fiber.Map{"note": note})
}

// DeleteNote удаляет заметку.
func (h *Handler) DeleteNote(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()
	log := logger.Log(requestCtx).With(zap.String("handler", "Handler.DeleteNote"))
	log.Debug(requestCtx, LogHandlerDeleteNote)

	noteID := ctx.Params("note_id")
	if noteID == "" {
		return response.Fail(ctx, fiber.StatusBadRequest, ErrMsgInvalidNoteID)
	}

	if err := h.notes.Delete(requestCtx, noteID); err != nil {
		log.Error(requestCtx, "failed to delete note", zap.String("noteID", noteID), zap.Error(err))
		return response.Error(ctx, err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

// intQuery читает необязательный неотрицательный целый параметр запроса.
func intQuery(ctx fiber.Ctx, key string) (int, error) {
	raw := ctx.Query(key)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, strconv.ErrRange
	}
	return value, nil
}
