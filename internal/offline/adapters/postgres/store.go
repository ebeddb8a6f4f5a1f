// Package postgres содержит реализацию локального хранилища на PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/ports/repositories"
	"notesync/pkg/logger"
)

// DB - подмножество pgxpool.Pool, используемое хранилищем.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

const (
	sqlGetSnapshot = `SELECT data, updated_at FROM offline_snapshots WHERE collection = $1 AND id = $2`

	sqlPutSnapshot = `INSERT INTO offline_snapshots (collection, id, data, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

	sqlDeleteSnapshot = `DELETE FROM offline_snapshots WHERE collection = $1 AND id = $2`

	sqlListSnapshots = `SELECT id, data, updated_at FROM offline_snapshots
		WHERE collection = $1 ORDER BY updated_at DESC, id`

	sqlEnqueue = `INSERT INTO offline_queue (kind, entity_id, fields, enqueued_at) VALUES ($1, $2, $3, $4) RETURNING queue_id`

	sqlListQueue = `SELECT queue_id, kind, entity_id, fields, enqueued_at FROM offline_queue ORDER BY queue_id`

	sqlHead = `SELECT queue_id, kind, entity_id, fields, enqueued_at FROM offline_queue ORDER BY queue_id LIMIT 1`

	sqlRemove = `DELETE FROM offline_queue WHERE queue_id = $1`

	sqlRewriteID = `UPDATE offline_queue SET entity_id = $2 WHERE entity_id = $1 AND queue_id <> $3`

	sqlHasPending = `SELECT EXISTS (SELECT 1 FROM offline_queue WHERE entity_id = $1)`

	sqlRecordAlias = `INSERT INTO offline_id_aliases (local_id, remote_id) VALUES ($1, $2)
		ON CONFLICT (local_id) DO UPDATE SET remote_id = EXCLUDED.remote_id`

	sqlResolveAlias = `SELECT remote_id FROM offline_id_aliases WHERE local_id = $1`
)

// Store реализует repositories.LocalStore поверх PostgreSQL.
type Store struct {
	db      DB
	timeout time.Duration
}

// NewStore создает хранилище. opTimeout ограничивает каждую операцию, 0 - без ограничения.
func NewStore(db DB, opTimeout time.Duration) *Store {
	return &Store{db: db, timeout: opTimeout}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) fail(ctx context.Context, method, msg string, err error) error {
	logger.Log(ctx).Error(ctx, msg, zap.String("method", method), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", repositories.ErrStorageUnavailable, msg, err)
}

// GetSnapshot возвращает снимок или nil, если его нет.
func (s *Store) GetSnapshot(ctx context.Context, coll entities.Collection, id string) (*entities.Snapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	snap := &entities.Snapshot{Collection: coll, ID: id}
	var data []byte
	err := s.db.QueryRow(ctx, sqlGetSnapshot, string(coll), id).Scan(&data, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, s.fail(ctx, "Store.GetSnapshot", "failed to get snapshot", err)
	}
	snap.Data = data
	return snap, nil
}

// PutSnapshot создает или перезаписывает снимок.
func (s *Store) PutSnapshot(ctx context.Context, snap *entities.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.Exec(ctx, sqlPutSnapshot, string(snap.Collection), snap.ID, []byte(snap.Data), snap.UpdatedAt); err != nil {
		return s.fail(ctx, "Store.PutSnapshot", "failed to put snapshot", err)
	}
	return nil
}

// DeleteSnapshot удаляет снимок. Отсутствие снимка не ошибка.
func (s *Store) DeleteSnapshot(ctx context.Context, coll entities.Collection, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.Exec(ctx, sqlDeleteSnapshot, string(coll), id); err != nil {
		return s.fail(ctx, "Store.DeleteSnapshot", "failed to delete snapshot", err)
	}
	return nil
}

// ListSnapshots возвращает снимки коллекции от последних измененных к ранним.
func (s *Store) ListSnapshots(ctx context.Context, coll entities.Collection) ([]*entities.Snapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, sqlListSnapshots, string(coll))
	if err != nil {
		return nil, s.fail(ctx, "Store.ListSnapshots", "failed to list snapshots", err)
	}
	defer rows.Close()

	snaps := make([]*entities.Snapshot, 0)
	for rows.Next() {
		snap := &entities.Snapshot{Collection: coll}
		var data []byte
		if err := rows.Scan(&snap.ID, &data, &snap.UpdatedAt); err != nil {
			return nil, s.fail(ctx, "Store.ListSnapshots", "failed to scan snapshot", err)
		}
		snap.Data = data
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, "Store.ListSnapshots", "error iterating rows", err)
	}
	return snaps, nil
}

// Enqueue добавляет операцию в конец очереди. Номер назначает последовательность queue_id.
func (s *Store) Enqueue(ctx context.Context, kind entities.OperationKind, payload entities.Payload) (*entities.Operation, error) {
	op := &entities.Operation{Kind: kind, Payload: payload, EnqueuedAt: time.Now().UTC()}
	if err := op.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.QueryRow(ctx, sqlEnqueue, string(kind), payload.ID, nullableJSON(payload.Fields), op.EnqueuedAt).
		Scan(&op.QueueID)
	if err != nil {
		return nil, s.fail(ctx, "Store.Enqueue", "failed to enqueue operation", err)
	}

	logger.Log(ctx).Debug(ctx, "operation enqueued",
		zap.Int64("queueID", op.QueueID), zap.String("kind", string(kind)), zap.String("entityID", payload.ID))
	return op, nil
}

// ListQueue возвращает очередь в порядке QueueID.
func (s *Store) ListQueue(ctx context.Context) ([]*entities.Operation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, sqlListQueue)
	if err != nil {
		return nil, s.fail(ctx, "Store.ListQueue", "failed to list queue", err)
	}
	defer rows.Close()

	ops := make([]*entities.Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, s.fail(ctx, "Store.ListQueue", "failed to scan operation", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, "Store.ListQueue", "error iterating rows", err)
	}
	return ops, nil
}

// Head возвращает операцию с наименьшим QueueID или nil.
func (s *Store) Head(ctx context.Context) (*entities.Operation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	op, err := scanOperation(s.db.QueryRow(ctx, sqlHead))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, s.fail(ctx, "Store.Head", "failed to read queue head", err)
	}
	return op, nil
}

// Remove удаляет операцию. Повторное удаление не ошибка.
func (s *Store) Remove(ctx context.Context, queueID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.Exec(ctx, sqlRemove, queueID); err != nil {
		return s.fail(ctx, "Store.Remove", "failed to remove operation", err)
	}
	return nil
}

// RewriteID переписывает идентификатор в нагрузке всех операций, кроме exceptQueueID.
func (s *Store) RewriteID(ctx context.Context, oldID, newID string, exceptQueueID int64) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx, sqlRewriteID, oldID, newID, exceptQueueID)
	if err != nil {
		return 0, s.fail(ctx, "Store.RewriteID", "failed to rewrite queued ids", err)
	}
	return int(tag.RowsAffected()), nil
}

// HasPending сообщает, ссылается ли хоть одна операция на идентификатор.
func (s *Store) HasPending(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists bool
	if err := s.db.QueryRow(ctx, sqlHasPending, id).Scan(&exists); err != nil {
		return false, s.fail(ctx, "Store.HasPending", "failed to check pending operations", err)
	}
	return exists, nil
}

// RecordAlias запоминает серверный идентификатор для локального.
func (s *Store) RecordAlias(ctx context.Context, localID, serverID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.Exec(ctx, sqlRecordAlias, localID, serverID); err != nil {
		return s.fail(ctx, "Store.RecordAlias", "failed to record alias", err)
	}
	return nil
}

// ResolveAlias возвращает серверный идентификатор или сам id.
func (s *Store) ResolveAlias(ctx context.Context, id string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var remoteID string
	if err := s.db.QueryRow(ctx, sqlResolveAlias, id).Scan(&remoteID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return id, nil
		}
		return "", s.fail(ctx, "Store.ResolveAlias", "failed to resolve alias", err)
	}
	return remoteID, nil
}

// CompleteCreate атомарно применяет результат успешного CREATE в одной транзакции.
func (s *Store) CompleteCreate(ctx context.Context, c repositories.CreateCompletion) (int, error) {
	if err := c.Snapshot.Validate(); err != nil {
		return 0, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	log := logger.Log(ctx).With(zap.String("method", "Store.CompleteCreate"))

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, s.fail(ctx, "Store.CompleteCreate", "failed to begin transaction", err)
	}

	rewritten, err := completeCreate(ctx, tx, c)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Warn(ctx, "failed to rollback transaction", zap.Error(rbErr))
		}
		return 0, s.fail(ctx, "Store.CompleteCreate", "failed to complete create", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, s.fail(ctx, "Store.CompleteCreate", "failed to commit transaction", err)
	}

	log.Debug(ctx, "create completed",
		zap.String("localID", c.LocalID), zap.String("serverID", c.Snapshot.ID), zap.Int("rewritten", rewritten))
	return rewritten, nil
}

func completeCreate(ctx context.Context, tx pgx.Tx, c repositories.CreateCompletion) (int, error) {
	snap := c.Snapshot

	tag, err := tx.Exec(ctx, sqlRewriteID, c.LocalID, snap.ID, c.QueueID)
	if err != nil {
		return 0, err
	}
	if c.LocalID != snap.ID {
		if _, err := tx.Exec(ctx, sqlRecordAlias, c.LocalID, snap.ID); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, sqlDeleteSnapshot, string(snap.Collection), c.LocalID); err != nil {
			return 0, err
		}
	}
	if _, err := tx.Exec(ctx, sqlPutSnapshot, string(snap.Collection), snap.ID, []byte(snap.Data), snap.UpdatedAt); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, sqlRemove, c.QueueID); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Close закрывает пул соединений.
func (s *Store) Close(ctx context.Context) error {
	logger.Log(ctx).Info(ctx, "closing postgres store")
	s.db.Close()
	return nil
}

func scanOperation(row pgx.Row) (*entities.Operation, error) {
	var (
		op     entities.Operation
		kind   string
		fields []byte
	)
	if err := row.Scan(&op.QueueID, &kind, &op.Payload.ID, &fields, &op.EnqueuedAt); err != nil {
		return nil, err
	}
	op.Kind = entities.OperationKind(kind)
	if len(fields) > 0 {
		op.Payload.Fields = fields
	}
	return &op, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

var _ repositories.LocalStore = (*Store)(nil)
