// Package repositories определяет контракт локального долговременного хранилища.
package repositories

import (
	"context"
	"errors"

	"notesync/internal/offline/domain/entities"
)

// ErrStorageUnavailable возвращается при любой ошибке нижележащего хранилища.
// Состояние операций в очереди в этом случае неизвестно, их следует повторить позже.
var ErrStorageUnavailable = errors.New("local storage unavailable")

// SnapshotRepository хранит снимки сущностей по идентификатору.
type SnapshotRepository interface {
	// GetSnapshot возвращает nil, nil если снимка нет.
	GetSnapshot(ctx context.Context, coll entities.Collection, id string) (*entities.Snapshot, error)
	PutSnapshot(ctx context.Context, snap *entities.Snapshot) error
	// DeleteSnapshot идемпотентен.
	DeleteSnapshot(ctx context.Context, coll entities.Collection, id string) error
	// ListSnapshots возвращает снимки, начиная с последних измененных.
	ListSnapshots(ctx context.Context, coll entities.Collection) ([]*entities.Snapshot, error)
}

// QueueRepository - FIFO очередь операций.
type QueueRepository interface {
	// Enqueue добавляет операцию в конец очереди и назначает возрастающий QueueID.
	Enqueue(ctx context.Context, kind entities.OperationKind, payload entities.Payload) (*entities.Operation, error)
	// ListQueue возвращает операции в порядке QueueID.
	ListQueue(ctx context.Context) ([]*entities.Operation, error)
	// Head возвращает операцию с наименьшим QueueID или nil для пустой очереди.
	Head(ctx context.Context) (*entities.Operation, error)
	// Remove идемпотентен: удаление отсутствующей записи не ошибка.
	Remove(ctx context.Context, queueID int64) error
	// RewriteID меняет идентификатор в нагрузке всех операций, кроме exceptQueueID.
	RewriteID(ctx context.Context, oldID, newID string, exceptQueueID int64) (int, error)
	// HasPending сообщает, ссылается ли хоть одна операция на идентификатор.
	HasPending(ctx context.Context, id string) (bool, error)
}

// AliasRepository запоминает, какой серверный идентификатор получил локальный.
type AliasRepository interface {
	RecordAlias(ctx context.Context, localID, serverID string) error
	// ResolveAlias возвращает серверный идентификатор или сам id, если псевдонима нет.
	ResolveAlias(ctx context.Context, id string) (string, error)
}

// CreateCompletion описывает подтвержденное сервером создание сущности.
type CreateCompletion struct {
	QueueID  int64
	LocalID  string
	Snapshot *entities.Snapshot
}

// LocalStore объединяет хранилище снимков, очередь и псевдонимы.
type LocalStore interface {
	SnapshotRepository
	QueueRepository
	AliasRepository

	// CompleteCreate атомарно выполняет переназначение после успешного CREATE:
	// переписывает идентификатор в остальных операциях, запоминает псевдоним,
	// заменяет локальный снимок серверным и удаляет запись очереди.
	// Возвращает количество переписанных операций.
	CompleteCreate(ctx context.Context, c CreateCompletion) (int, error)

	Close(ctx context.Context) error
}
