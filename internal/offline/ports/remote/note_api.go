package remote

import (
	"context"
	"encoding/json"

	"notesync/internal/offline/domain/entities"
)

// NoteAPI - удаленный API заметок. Все ошибки возвращаются как *Error.
type NoteAPI interface {
	ListNotes(ctx context.Context, q entities.ListQuery) (*entities.NotePage, error)
	GetNote(ctx context.Context, id string) (*entities.Note, error)
	// CreateNote отправляет тело создания; idempotencyKey - локальный идентификатор.
	CreateNote(ctx context.Context, fields json.RawMessage, idempotencyKey string) (*entities.Note, error)
	UpdateNote(ctx context.Context, id string, fields json.RawMessage) (*entities.Note, error)
	DeleteNote(ctx context.Context, id string) error
	Close() error
}

// CredentialSource выдает учетные данные сессии для каждого запроса.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}
