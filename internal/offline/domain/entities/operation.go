package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OperationKind - вид мутации в очереди.
type OperationKind string

// Виды операций.
const (
	OperationCreate OperationKind = "CREATE"
	OperationUpdate OperationKind = "UPDATE"
	OperationDelete OperationKind = "DELETE"
)

// LocalIDPrefix отличает клиентские идентификаторы от серверных.
const LocalIDPrefix = "local-"

// ErrInvalidOperation возвращается для операции неизвестного вида или без идентификатора.
var ErrInvalidOperation = errors.New("invalid queued operation")

// Valid сообщает, известен ли вид операции.
func (k OperationKind) Valid() bool {
	switch k {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Payload - полезная нагрузка операции: идентификатор сущности и непрозрачное тело запроса.
type Payload struct {
	ID     string          `json:"id"`
	Fields json.RawMessage `json:"fields,omitempty"`
}

// NewPayload сериализует fields в тело операции над сущностью id.
func NewPayload(id string, fields any) (Payload, error) {
	if fields == nil {
		return Payload{ID: id}, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return Payload{}, fmt.Errorf("marshal payload for %s: %w", id, err)
	}
	return Payload{ID: id, Fields: data}, nil
}

// Operation - запись очереди, ожидающая воспроизведения на сервере.
type Operation struct {
	QueueID    int64         `json:"queueId"`
	Kind       OperationKind `json:"kind"`
	Payload    Payload       `json:"payload"`
	EnqueuedAt time.Time     `json:"enqueuedAt"`
}

// Validate проверяет операцию перед постановкой в очередь.
func (o *Operation) Validate() error {
	if o == nil || !o.Kind.Valid() || o.Payload.ID == "" {
		return ErrInvalidOperation
	}
	return nil
}

// NewLocalID генерирует клиентский идентификатор.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocalID сообщает, что идентификатор выдан клиентом и сервер его не знает.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
