// Package services определяет интерфейсы сервисов клиента синхронизации.
package services

import (
	"context"
	"errors"

	"notesync/internal/offline/domain/entities"
)

// Ошибки фасада заметок.
var (
	ErrNoteNotFound = errors.New("note not found")
	ErrInvalidInput = errors.New("invalid note input")
)

// NoteService - единая точка входа для операций с заметками.
type NoteService interface {
	// List возвращает страницу заметок с сервера или из локального хранилища.
	List(ctx context.Context, q entities.ListQuery) (*entities.NotePage, error)

	// Get получает заметку по ID
	Get(ctx context.Context, id string) (*entities.Note, error)

	// Create создает заметку. Идентификатор назначается локально до обращения к серверу.
	Create(ctx context.Context, in entities.NoteInput) (*entities.Note, error)

	// Update частично обновляет заметку
	Update(ctx context.Context, id string, patch entities.NotePatch) (*entities.Note, error)

	// Delete удаляет заметку
	Delete(ctx context.Context, id string) error
}
