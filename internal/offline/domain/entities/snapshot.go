package entities

import (
	"encoding/json"
	"errors"
	"time"
)

// Collection - имя набора снимков в локальном хранилище.
type Collection string

// Коллекции локального хранилища.
const (
	CollectionNotes      Collection = "notes"
	CollectionCategories Collection = "categories"
	CollectionTags       Collection = "tags"
)

// ErrInvalidSnapshot возвращается для снимка без коллекции или идентификатора.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Valid сообщает, известна ли коллекция.
func (c Collection) Valid() bool {
	switch c {
	case CollectionNotes, CollectionCategories, CollectionTags:
		return true
	}
	return false
}

// Snapshot - локальная копия сущности. Содержимое непрозрачно,
// синхронизация меняет только ID.
type Snapshot struct {
	Collection Collection      `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Validate проверяет обязательные поля снимка.
func (s *Snapshot) Validate() error {
	if s == nil || s.ID == "" || !s.Collection.Valid() {
		return ErrInvalidSnapshot
	}
	return nil
}
