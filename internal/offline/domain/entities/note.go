// Package entities определяет доменные сущности клиента синхронизации заметок.
package entities

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Category - категория заметки в том виде, в каком ее отдает сервер.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Tag - метка заметки.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Note представляет собой заметку пользователя.
type Note struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Summary    string    `json:"summary,omitempty"`
	IsPublic   bool      `json:"isPublic"`
	CategoryID *string   `json:"categoryId,omitempty"`
	Category   *Category `json:"category,omitempty"`
	TagIDs     []string  `json:"tagIds,omitempty"`
	Tags       []Tag     `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NoteInput - тело запроса на создание заметки.
type NoteInput struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	CategoryID *string  `json:"categoryId,omitempty"`
	TagIDs     []string `json:"tagIds,omitempty"`
}

// NotePatch - частичное обновление заметки. Непереданное поле не меняется, categoryId: null сбрасывает категорию.
type NotePatch struct {
	Title      *string          `json:"title,omitempty"`
	Content    *string          `json:"content,omitempty"`
	CategoryID Optional[string] `json:"categoryId,omitzero"`
	TagIDs     *[]string        `json:"tagIds,omitempty"`
}

// IsEmpty сообщает, что патч ничего не меняет.
func (p NotePatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && !p.CategoryID.Set && p.TagIDs == nil
}

// NewLocalNote создает заметку, еще не подтвержденную сервером.
func NewLocalNote(id string, in NoteInput, now time.Time) *Note {
	return &Note{
		ID:         id,
		Title:      in.Title,
		Content:    in.Content,
		CategoryID: in.CategoryID,
		TagIDs:     slices.Clone(in.TagIDs),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Apply применяет патч к заметке.
func (n *Note) Apply(p NotePatch, now time.Time) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.CategoryID.Set {
		n.CategoryID = nil
		if p.CategoryID.Value != nil {
			categoryID := *p.CategoryID.Value
			n.CategoryID = &categoryID
		}
		n.Category = nil
	}
	if p.TagIDs != nil {
		n.TagIDs = slices.Clone(*p.TagIDs)
		n.Tags = nil
	}
	n.UpdatedAt = now
}

// Matches выполняет регистронезависимый поиск по заголовку и содержимому.
func (n *Note) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Content), q)
}

// InCategory проверяет принадлежность заметки категории.
func (n *Note) InCategory(categoryID string) bool {
	if n.CategoryID != nil && *n.CategoryID == categoryID {
		return true
	}
	return n.Category != nil && n.Category.ID == categoryID
}

// HasTag проверяет наличие метки у заметки.
func (n *Note) HasTag(tagID string) bool {
	if slices.Contains(n.TagIDs, tagID) {
		return true
	}
	return slices.ContainsFunc(n.Tags, func(t Tag) bool { return t.ID == tagID })
}

// Snapshot сериализует заметку в снимок коллекции notes.
func (n *Note) Snapshot() (*Snapshot, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal note %s: %w", n.ID, err)
	}
	updatedAt := n.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	return &Snapshot{
		Collection: CollectionNotes,
		ID:         n.ID,
		Data:       data,
		UpdatedAt:  updatedAt,
	}, nil
}

// NoteFromSnapshot восстанавливает заметку из снимка. Идентификатор берется из снимка.
func NoteFromSnapshot(s *Snapshot) (*Note, error) {
	var note Note
	if err := json.Unmarshal(s.Data, &note); err != nil {
		return nil, fmt.Errorf("unmarshal note snapshot %s: %w", s.ID, err)
	}
	note.ID = s.ID
	return &note, nil
}
