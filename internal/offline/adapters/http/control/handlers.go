// Package control содержит обработчики состояния синхронизации, сети и сессии.
package control

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"notesync/internal/offline/adapters/http/response"
	"notesync/internal/offline/ports/services"
	"notesync/pkg/logger"
)

// Тексты ошибок ответов.
const (
	ErrMsgInvalidRequestBody = "invalid request body"
	ErrMsgInvalidCursor      = "invalid notifications cursor"
)

// SessionSetter принимает новый токен сессии.
type SessionSetter interface {
	Set(token string)
	UserID() string
}

// StatusResponse - состояние клиента синхронизации.
type StatusResponse struct {
	Online  bool `json:"online"`
	Syncing bool `json:"syncing"`
	Pending int  `json:"pending"`
}

// ConnectivityRequest - сигнал окружения о состоянии сети.
type ConnectivityRequest struct {
	Online *bool `json:"online"`
}

// SessionRequest - новый токен сессии.
type SessionRequest struct {
	Token string `json:"token"`
}

// SessionResponse - владелец принятого токена. Пусто для непрозрачных токенов.
type SessionResponse struct {
	UserID string `json:"userId,omitempty"`
}

// Handler обслуживает управляющие маршруты.
type Handler struct {
	sync    services.SyncService
	conn    services.ConnectivityService
	feed    services.NotificationFeed
	session SessionSetter
}

// NewHandler создает обработчик. session может быть nil, тогда маршрут сессии не регистрируется.
func NewHandler(
	sync services.SyncService,
	conn services.ConnectivityService,
	feed services.NotificationFeed,
	session SessionSetter,
) *Handler {
	return &Handler{sync: sync, conn: conn, feed: feed, session: session}
}

// Register подключает маршруты к группе API.
func (h *Handler) Register(router fiber.Router) {
	router.Get("/status", h.Status)
	router.Post("/connectivity", h.SetConnectivity)
	router.Post("/sync", h.TriggerSync)
	router.Get("/notifications", h.Notifications)
	if h.session != nil {
		router.Put("/session", h.SetSession)
	}
}

// Status возвращает состояние сети, синхронизации и размер очереди.
func (h *Handler) Status(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()

	pending, err := h.sync.Pending(requestCtx)
	if err != nil {
		logger.Log(requestCtx).Error(requestCtx, "failed to count pending operations", zap.Error(err))
		return response.Error(ctx, err)
	}

	return response.JSON(ctx, fiber.StatusOK, StatusResponse{
		Online:  h.conn.IsOnline(),
		Syncing: h.sync.Syncing(),
		Pending: pending,
	})
}

// SetConnectivity применяет сигнал окружения о сети.
func (h *Handler) SetConnectivity(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()

	var req ConnectivityRequest
	if err := ctx.Bind().Body(&req); err != nil || req.Online == nil {
		return response.Fail(ctx, fiber.StatusBadRequest, ErrMsgInvalidRequestBody)
	}

	changed := h.conn.Set(requestCtx, *req.Online)
	logger.Log(requestCtx).Info(requestCtx, "connectivity signal received",
		zap.Bool("online", *req.Online),
		zap.Bool("changed", changed))

	return response.JSON(ctx, fiber.StatusOK, fiber.Map{
		"online":  h.conn.IsOnline(),
		"changed": changed,
	})
}

// TriggerSync запускает синхронизацию в фоне.
func (h *Handler) TriggerSync(ctx fiber.Ctx) error {
	h.sync.Trigger()
	return response.JSON(ctx, fiber.StatusAccepted, fiber.Map{"syncing": h.sync.Syncing()})
}

// Notifications возвращает уведомления с номером больше after.
func (h *Handler) Notifications(ctx fiber.Ctx) error {
	var after uint64
	if raw := ctx.Query("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return response.Fail(ctx, fiber.StatusBadRequest, ErrMsgInvalidCursor)
		}
		after = parsed
	}

	return response.JSON(ctx, fiber.StatusOK, fiber.Map{"events": h.feed.Recent(after)})
}

// SetSession заменяет токен сессии и запускает синхронизацию отложенных изменений.
func (h *Handler) SetSession(ctx fiber.Ctx) error {
	requestCtx := ctx.Context()

	var req SessionRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return response.Fail(ctx, fiber.StatusBadRequest, ErrMsgInvalidRequestBody)
	}

	h.session.Set(req.Token)
	userID := h.session.UserID()
	logger.Log(requestCtx).Info(requestCtx, "session token replaced", zap.String("userID", userID))
	h.sync.Trigger()

	return response.JSON(ctx, fiber.StatusOK, SessionResponse{UserID: userID})
}
