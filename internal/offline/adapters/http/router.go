// Package http содержит локальный HTTP API для интерфейса пользователя.
package http

import (
	"github.com/gofiber/fiber/v3"

	"notesync/internal/offline/adapters/http/control"
	"notesync/internal/offline/adapters/http/middleware"
	"notesync/internal/offline/adapters/http/notes"
	"notesync/internal/offline/adapters/http/response"
	"notesync/internal/offline/ports/services"
)

// Dependencies - сервисы, которые обслуживает локальный API.
type Dependencies struct {
	Notes   services.NoteService
	Sync    services.SyncService
	Conn    services.ConnectivityService
	Feed    services.NotificationFeed
	Session control.SessionSetter
}

// SetupRouter настраивает маршрутизацию HTTP сервера.
func SetupRouter(app *fiber.App, deps Dependencies) {
	app.Use(middleware.NewRequestIDMiddleware())
	app.Use(middleware.NewLoggerMiddleware())
	app.Use(middleware.NewRecoveryMiddleware())

	apiV1 := app.Group("/api/v1")

	notes.NewHandler(deps.Notes).Register(apiV1.Group("/notes"))
	control.NewHandler(deps.Sync, deps.Conn, deps.Feed, deps.Session).Register(apiV1)

	app.Use(func(c fiber.Ctx) error {
		return response.Fail(c, fiber.StatusNotFound, response.MsgRouteNotFound)
	})
}
