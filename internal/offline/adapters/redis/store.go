// Package redis содержит реализацию локального хранилища на Redis.
// Долговременность обеспечивается настройками сохранения самого Redis (AOF).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/ports/repositories"
	"notesync/pkg/logger"
)

// Константы для логирования.
const (
	ErrorFailedToRead    = "failed to read from redis"
	ErrorFailedToWrite   = "failed to write to redis"
	ErrorFailedToDecode  = "failed to decode stored value"
	ErrorFailedToRewrite = "failed to rewrite queued ids"
	ErrorQueueEntryLost  = "queue entry has no stored operation"
	ErrorFailedToClose   = "failed to close redis connection"
)

// DefaultPrefix - пространство имен ключей по умолчанию.
const DefaultPrefix = "notesync"

const maxTxRetries = 16

// Options настраивает хранилище.
type Options struct {
	Prefix    string
	OpTimeout time.Duration
}

// Store реализует repositories.LocalStore поверх Redis.
type Store struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewStore создает хранилище. Store владеет клиентом и закрывает его в Close.
func NewStore(client *redis.Client, opts Options) *Store {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, timeout: opts.OpTimeout}
}

func (s *Store) snapKey(coll entities.Collection) string {
	return s.prefix + ":snap:" + string(coll)
}

func (s *Store) snapOrderKey(coll entities.Collection) string {
	return s.prefix + ":snap:" + string(coll) + ":by-updated"
}

func (s *Store) seqKey() string   { return s.prefix + ":queue:seq" }
func (s *Store) queueKey() string { return s.prefix + ":queue" }
func (s *Store) opsKey() string   { return s.prefix + ":queue:ops" }
func (s *Store) aliasKey() string { return s.prefix + ":aliases" }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func unavailable(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", repositories.ErrStorageUnavailable, msg, err)
}

// GetSnapshot возвращает снимок или nil, если его нет.
func (s *Store) GetSnapshot(ctx context.Context, coll entities.Collection, id string) (*entities.Snapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, err := s.client.HGet(ctx, s.snapKey(coll), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable(ErrorFailedToRead, err)
	}

	var snap entities.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, unavailable(ErrorFailedToDecode, err)
	}
	return &snap, nil
}

// PutSnapshot создает или перезаписывает снимок.
func (s *Store) PutSnapshot(ctx context.Context, snap *entities.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.putSnapshot(ctx, pipe, snap, data)
		return nil
	})
	if err != nil {
		logger.Log(ctx).Error(ctx, ErrorFailedToWrite, zap.String("method", "Store.PutSnapshot"), zap.Error(err))
		return unavailable(ErrorFailedToWrite, err)
	}
	return nil
}

func (s *Store) putSnapshot(ctx context.Context, pipe redis.Pipeliner, snap *entities.Snapshot, data []byte) {
	pipe.HSet(ctx, s.snapKey(snap.Collection), snap.ID, data)
	pipe.ZAdd(ctx, s.snapOrderKey(snap.Collection), redis.Z{
		Score:  float64(snap.UpdatedAt.UnixMicro()),
		Member: snap.ID,
	})
}

func (s *Store) deleteSnapshot(ctx context.Context, pipe redis.Pipeliner, coll entities.Collection, id string) {
	pipe.HDel(ctx, s.snapKey(coll), id)
	pipe.ZRem(ctx, s.snapOrderKey(coll), id)
}

// DeleteSnapshot удаляет снимок. Отсутствие снимка не ошибка.
func (s *Store) DeleteSnapshot(ctx context.Context, coll entities.Collection, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.deleteSnapshot(ctx, pipe, coll, id)
		return nil
	})
	if err != nil {
		return unavailable(ErrorFailedToWrite, err)
	}
	return nil
}

// ListSnapshots возвращает снимки коллекции от последних измененных к ранним.
func (s *Store) ListSnapshots(ctx context.Context, coll entities.Collection) ([]*entities.Snapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids, err := s.client.ZRevRange(ctx, s.snapOrderKey(coll), 0, -1).Result()
	if err != nil {
		return nil, unavailable(ErrorFailedToRead, err)
	}
	if len(ids) == 0 {
		return []*entities.Snapshot{}, nil
	}

	values, err := s.client.HMGet(ctx, s.snapKey(coll), ids...).Result()
	if err != nil {
		return nil, unavailable(ErrorFailedToRead, err)
	}

	snaps := make([]*entities.Snapshot, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var snap entities.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, unavailable(ErrorFailedToDecode, err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, nil
}

// Enqueue добавляет операцию в конец очереди.
func (s *Store) Enqueue(ctx context.Context, kind entities.OperationKind, payload entities.Payload) (*entities.Operation, error) {
	op := &entities.Operation{Kind: kind, Payload: payload, EnqueuedAt: time.Now().UTC()}
	if err := op.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return nil, unavailable(ErrorFailedToWrite, err)
	}
	op.QueueID = id

	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshal operation: %w", err)
	}

	field := strconv.FormatInt(id, 10)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.opsKey(), field, data)
		pipe.ZAdd(ctx, s.queueKey(), redis.Z{Score: float64(id), Member: field})
		return nil
	})
	if err != nil {
		logger.Log(ctx).Error(ctx, ErrorFailedToWrite, zap.String("method", "Store.Enqueue"), zap.Error(err))
		return nil, unavailable(ErrorFailedToWrite, err)
	}

	logger.Log(ctx).Debug(ctx, "operation enqueued",
		zap.Int64("queueID", id), zap.String("kind", string(kind)), zap.String("entityID", payload.ID))
	return op, nil
}

// ListQueue возвращает очередь в порядке QueueID.
func (s *Store) ListQueue(ctx context.Context) ([]*entities.Operation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	fields, err := s.client.ZRange(ctx, s.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, unavailable(ErrorFailedToRead, err)
	}
	if len(fields) == 0 {
		return []*entities.Operation{}, nil
	}

	values, err := s.client.HMGet(ctx, s.opsKey(), fields...).Result()
	if err != nil {
		return nil, unavailable(ErrorFailedToRead, err)
	}

	ops := make([]*entities.Operation, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		op, err := decodeOperation(raw)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// Head возвращает операцию с наименьшим QueueID или nil.
func (s *Store) Head(ctx context.Context) (*entities.Operation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	fields, err := s.client.ZRange(ctx, s.queueKey(), 0, 0).Result()
	if err != nil {
		return nil, unavailable(ErrorFailedToRead, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	raw, err := s.client.HGet(ctx, s.opsKey(), fields[0]).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, unavailable(ErrorQueueEntryLost, fmt.Errorf("queue id %s", fields[0]))
		}
		return nil, unavailable(ErrorFailedToRead, err)
	}
	return decodeOperation(raw)
}

// Remove удаляет операцию. Повторное удаление не ошибка.
func (s *Store) Remove(ctx context.Context, queueID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	field := strconv.FormatInt(queueID, 10)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.queueKey(), field)
		pipe.HDel(ctx, s.opsKey(), field)
		return nil
	})
	if err != nil {
		return unavailable(ErrorFailedToWrite, err)
	}
	return nil
}

// RewriteID переписывает идентификатор в нагрузке всех операций, кроме exceptQueueID.
func (s *Store) RewriteID(ctx context.Context, oldID, newID string, exceptQueueID int64) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rewritten int
	err := s.watch(ctx, func(tx *redis.Tx) error {
		changed, err := s.rewrite(ctx, tx, oldID, newID, exceptQueueID)
		if err != nil {
			return err
		}
		rewritten = len(changed)
		if len(changed) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.opsKey(), changed)
			return nil
		})
		return err
	}, s.opsKey())
	if err != nil {
		return 0, err
	}
	return rewritten, nil
}

// CompleteCreate атомарно применяет результат успешного CREATE.
func (s *Store) CompleteCreate(ctx context.Context, c repositories.CreateCompletion) (int, error) {
	if err := c.Snapshot.Validate(); err != nil {
		return 0, err
	}
	data, err := json.Marshal(c.Snapshot)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot %s: %w", c.Snapshot.ID, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	field := strconv.FormatInt(c.QueueID, 10)
	var rewritten int
	err = s.watch(ctx, func(tx *redis.Tx) error {
		changed, err := s.rewrite(ctx, tx, c.LocalID, c.Snapshot.ID, c.QueueID)
		if err != nil {
			return err
		}
		rewritten = len(changed)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(changed) > 0 {
				pipe.HSet(ctx, s.opsKey(), changed)
			}
			if c.LocalID != c.Snapshot.ID {
				pipe.HSet(ctx, s.aliasKey(), c.LocalID, c.Snapshot.ID)
				s.deleteSnapshot(ctx, pipe, c.Snapshot.Collection, c.LocalID)
			}
			s.putSnapshot(ctx, pipe, c.Snapshot, data)
			pipe.ZRem(ctx, s.queueKey(), field)
			pipe.HDel(ctx, s.opsKey(), field)
			return nil
		})
		return err
	}, s.opsKey(), s.queueKey())
	if err != nil {
		return 0, err
	}

	logger.Log(ctx).Debug(ctx, "create completed",
		zap.String("localID", c.LocalID), zap.String("serverID", c.Snapshot.ID), zap.Int("rewritten", rewritten))
	return rewritten, nil
}

// watch выполняет оптимистичную транзакцию с повтором при конкурентном изменении ключей.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, fn, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, repositories.ErrStorageUnavailable) {
			return err
		}
		logger.Log(ctx).Error(ctx, ErrorFailedToRewrite, zap.Error(err))
		return unavailable(ErrorFailedToRewrite, err)
	}
	return unavailable(ErrorFailedToRewrite, redis.TxFailedErr)
}

// rewrite читает операции внутри WATCH и возвращает измененные значения по полям.
func (s *Store) rewrite(ctx context.Context, tx *redis.Tx, oldID, newID string, exceptQueueID int64) (map[string]any, error) {
	all, err := tx.HGetAll(ctx, s.opsKey()).Result()
	if err != nil {
		return nil, unavailable(ErrorFailedToRead, err)
	}

	changed := make(map[string]any)
	for field, raw := range all {
		op, err := decodeOperation(raw)
		if err != nil {
			return nil, err
		}
		if op.QueueID == exceptQueueID || op.Payload.ID != oldID {
			continue
		}
		op.Payload.ID = newID
		data, err := json.Marshal(op)
		if err != nil {
			return nil, fmt.Errorf("marshal operation: %w", err)
		}
		changed[field] = data
	}
	return changed, nil
}

// HasPending сообщает, ссылается ли хоть одна операция на идентификатор.
func (s *Store) HasPending(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	values, err := s.client.HVals(ctx, s.opsKey()).Result()
	if err != nil {
		return false, unavailable(ErrorFailedToRead, err)
	}
	for _, raw := range values {
		op, err := decodeOperation(raw)
		if err != nil {
			return false, err
		}
		if op.Payload.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// RecordAlias запоминает серверный идентификатор для локального.
func (s *Store) RecordAlias(ctx context.Context, localID, serverID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.HSet(ctx, s.aliasKey(), localID, serverID).Err(); err != nil {
		return unavailable(ErrorFailedToWrite, err)
	}
	return nil
}

// ResolveAlias возвращает серверный идентификатор или сам id.
func (s *Store) ResolveAlias(ctx context.Context, id string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	serverID, err := s.client.HGet(ctx, s.aliasKey(), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return id, nil
		}
		return "", unavailable(ErrorFailedToRead, err)
	}
	return serverID, nil
}

// Close закрывает соединение с Redis.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Close(); err != nil {
		logger.Log(ctx).Error(ctx, ErrorFailedToClose, zap.Error(err))
		return fmt.Errorf("%s: %w", ErrorFailedToClose, err)
	}
	return nil
}

func decodeOperation(raw string) (*entities.Operation, error) {
	var op entities.Operation
	if err := json.Unmarshal([]byte(raw), &op); err != nil {
		return nil, unavailable(ErrorFailedToDecode, err)
	}
	return &op, nil
}

var _ repositories.LocalStore = (*Store)(nil)
