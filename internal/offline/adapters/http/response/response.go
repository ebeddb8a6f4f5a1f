// Package response формирует ответы локального HTTP API.
package response

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"

	"notesync/internal/offline/ports/remote"
	"notesync/internal/offline/ports/repositories"
	"notesync/internal/offline/ports/services"
)

// Тексты ошибок ответа.
const (
	MsgUnauthorized       = "session expired, please sign in again"
	MsgNotFound           = "note not found"
	MsgStorageUnavailable = "local storage is unavailable"
	MsgInternal           = "Internal server error"
	MsgRouteNotFound      = "Route not found"
)

// StatusOf возвращает HTTP-статус для ошибки сервиса.
func StatusOf(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, remote.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, services.ErrNoteNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, repositories.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// Error отправляет JSON с описанием ошибки.
func Error(ctx fiber.Ctx, err error) error {
	status := StatusOf(err)

	message := err.Error()
	switch status {
	case fiber.StatusUnauthorized:
		message = MsgUnauthorized
	case fiber.StatusNotFound:
		message = MsgNotFound
	case fiber.StatusServiceUnavailable:
		message = MsgStorageUnavailable
	case fiber.StatusInternalServerError:
		message = MsgInternal
	}

	return Fail(ctx, status, message)
}

// Fail отправляет ошибку с заданным статусом и текстом.
func Fail(ctx fiber.Ctx, status int, message string) error {
	if err := ctx.Status(status).JSON(fiber.Map{"error": message}); err != nil {
		return fmt.Errorf("failed to send error response: %w", err)
	}
	return nil
}

// JSON отправляет тело ответа с заданным статусом.
func JSON(ctx fiber.Ctx, status int, body any) error {
	if err := ctx.Status(status).JSON(body); err != nil {
		return fmt.Errorf("error sending response: %w", err)
	}
	return nil
}
