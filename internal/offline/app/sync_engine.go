// Package app содержит движок синхронизации очереди и фасад заметок.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/ports/remote"
	"notesync/internal/offline/ports/repositories"
	"notesync/internal/offline/ports/services"
	"notesync/pkg/logger"
)

// Сообщения уведомлений.
const (
	MsgSyncStarted      = "connection restored, syncing offline changes"
	MsgSyncComplete     = "all offline changes are saved"
	MsgSyncPaused       = "sync paused, will retry when the connection is back"
	MsgChangesDiscarded = "some offline changes were discarded"
	MsgWentOffline      = "you are offline, changes will be saved locally"
	MsgWentOnline       = "you are back online"
	MsgStorageFailure   = "local storage is unavailable"
)

// ErrEngineStopped возвращается при попытке запуска остановленного движка.
var ErrEngineStopped = errors.New("sync engine stopped")

// DrainReport - итог одного прохода по очереди.
type DrainReport struct {
	// Started false означает, что проход не начинался: нет сети или уже идет другой.
	Started   bool
	Replayed  int
	Discarded int
	Remapped  int
	Paused    bool
	Completed bool
}

// SyncEngine воспроизводит очередь операций на сервере строго в порядке QueueID.
type SyncEngine struct {
	store    repositories.LocalStore
	api      remote.NoteAPI
	conn     services.ConnectivityService
	notifier services.Notifier

	// mu упорядочивает изменения очереди фасадом и переназначение идентификаторов.
	mu      sync.Mutex
	running atomic.Bool

	lifeMu  sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewSyncEngine создает движок синхронизации.
func NewSyncEngine(
	store repositories.LocalStore,
	api remote.NoteAPI,
	conn services.ConnectivityService,
	notifier services.Notifier,
) *SyncEngine {
	return &SyncEngine{
		store:    store,
		api:      api,
		conn:     conn,
		notifier: notifier,
	}
}

// Start подписывается на смену состояния сети и запускает стартовую синхронизацию.
func (e *SyncEngine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	if e.stopped {
		e.lifeMu.Unlock()
		return ErrEngineStopped
	}
	if e.ctx != nil {
		e.lifeMu.Unlock()
		return nil
	}
	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.lifeMu.Unlock()

	e.conn.OnOnline(func(ctx context.Context) {
		e.notifier.Publish(ctx, entities.Event{Kind: entities.EventWentOnline, Message: MsgWentOnline})
		e.Trigger()
	})
	e.conn.OnOffline(func(ctx context.Context) {
		e.notifier.Publish(ctx, entities.Event{Kind: entities.EventWentOffline, Message: MsgWentOffline})
	})

	logger.Log(ctx).Info(ctx, "sync engine started", zap.Bool("online", e.conn.IsOnline()))
	e.Trigger()

	return nil
}

// Stop отменяет текущую синхронизацию и ждет ее завершения.
func (e *SyncEngine) Stop(ctx context.Context) error {
	e.lifeMu.Lock()
	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
	e.lifeMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log(ctx).Info(ctx, "sync engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for sync engine: %w", ctx.Err())
	}
}

// Trigger запускает проход по очереди в фоне.
func (e *SyncEngine) Trigger() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.stopped || e.ctx == nil || e.running.Load() {
		return
	}

	ctx := e.ctx
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log(ctx).Error(ctx, "background drain failed", zap.Error(err))
		}
	}()
}

// Syncing сообщает, идет ли сейчас проход по очереди.
func (e *SyncEngine) Syncing() bool {
	return e.running.Load()
}

// Pending возвращает количество операций в очереди.
func (e *SyncEngine) Pending(ctx context.Context) (int, error) {
	queue, err := e.store.ListQueue(ctx)
	if err != nil {
		return 0, err
	}
	return len(queue), nil
}

// Drain синхронно воспроизводит очередь. Если сети нет или проход уже идет, сразу возвращается.
// Ошибки воспроизведения отдельных операций сообщаются уведомлениями, ошибкой возвращается
// только отказ локального хранилища или отмена ctx.
func (e *SyncEngine) Drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport

	if !e.conn.IsOnline() {
		return report, nil
	}
	if !e.running.CompareAndSwap(false, true) {
		return report, nil
	}
	defer e.running.Store(false)

	report.Started = true
	if !logger.IsDrainContext(ctx) {
		ctx = logger.NewDrainContext(ctx)
	}
	log := logger.Log(ctx).With(zap.String("method", "SyncEngine.Drain"))
	announced := false

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !e.conn.IsOnline() {
			report.Paused = true
			e.notifier.Publish(ctx, entities.Event{
				Kind:      entities.EventSyncPaused,
				Message:   MsgSyncPaused,
				Replayed:  report.Replayed,
				Discarded: report.Discarded,
			})
			return report, nil
		}

		head, err := e.store.Head(ctx)
		if err != nil {
			return report, e.storageFailure(ctx, "read queue head", err)
		}
		if head == nil {
			break
		}

		if !announced {
			announced = true
			e.notifier.Publish(ctx, entities.Event{Kind: entities.EventSyncStarted, Message: MsgSyncStarted})
		}

		opLog := log.With(
			zap.Int64("queueID", head.QueueID),
			zap.String("kind", string(head.Kind)),
			zap.String("entityID", head.Payload.ID),
		)

		remapped, err := e.replay(ctx, head)
		if err == nil {
			report.Replayed++
			report.Remapped += remapped
			opLog.Debug(ctx, "operation replayed", zap.Int("remapped", remapped))
			continue
		}

		if errors.Is(err, repositories.ErrStorageUnavailable) {
			return report, e.storageFailure(ctx, "apply replay result", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}

		if discardable(err) {
			opLog.Warn(ctx, "operation rejected by server, discarding", zap.Error(err))
			if rmErr := e.store.Remove(ctx, head.QueueID); rmErr != nil {
				return report, e.storageFailure(ctx, "remove rejected operation", rmErr)
			}
			report.Discarded++
			e.notifier.Publish(ctx, entities.Event{
				Kind:      entities.EventChangesDiscarded,
				Message:   MsgChangesDiscarded,
				QueueID:   head.QueueID,
				Operation: head.Kind,
				EntityID:  head.Payload.ID,
				Error:     err.Error(),
			})
		} else {
			opLog.Warn(ctx, "transient failure, pausing sync", zap.Error(err))
			report.Paused = true
			e.notifier.Publish(ctx, entities.Event{
				Kind:      entities.EventSyncPaused,
				Message:   MsgSyncPaused,
				QueueID:   head.QueueID,
				Operation: head.Kind,
				EntityID:  head.Payload.ID,
				Error:     err.Error(),
				Replayed:  report.Replayed,
				Discarded: report.Discarded,
			})
			return report, nil
		}
	}

	report.Completed = true
	e.notifier.Publish(ctx, entities.Event{
		Kind:      entities.EventSyncComplete,
		Message:   MsgSyncComplete,
		Replayed:  report.Replayed,
		Discarded: report.Discarded,
	})
	log.Info(ctx, "queue drained",
		zap.Int("replayed", report.Replayed),
		zap.Int("discarded", report.Discarded),
		zap.Int("remapped", report.Remapped))

	return report, nil
}

// replay выполняет удаленный вызов для операции и при успехе применяет результат к хранилищу.
// Возвращает количество операций, в которых был переписан идентификатор.
func (e *SyncEngine) replay(ctx context.Context, op *entities.Operation) (int, error) {
	switch op.Kind {
	case entities.OperationCreate:
		note, err := e.api.CreateNote(ctx, op.Payload.Fields, op.Payload.ID)
		if err != nil {
			return 0, err
		}
		if note == nil || note.ID == "" {
			return 0, remote.NewMalformedError("CreateNote", "response carries no note id")
		}
		snap, err := note.Snapshot()
		if err != nil {
			return 0, remote.NewMalformedError("CreateNote", err.Error())
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		return e.store.CompleteCreate(ctx, repositories.CreateCompletion{
			QueueID:  op.QueueID,
			LocalID:  op.Payload.ID,
			Snapshot: snap,
		})

	case entities.OperationUpdate:
		note, err := e.api.UpdateNote(ctx, op.Payload.ID, op.Payload.Fields)
		if err != nil {
			return 0, err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if note != nil {
			if note.ID == "" {
				note.ID = op.Payload.ID
			}
			snap, err := note.Snapshot()
			if err != nil {
				return 0, remote.NewMalformedError("UpdateNote", err.Error())
			}
			if err := e.store.PutSnapshot(ctx, snap); err != nil {
				return 0, err
			}
		}
		return 0, e.store.Remove(ctx, op.QueueID)

	case entities.OperationDelete:
		if err := e.api.DeleteNote(ctx, op.Payload.ID); err != nil {
			return 0, err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.store.DeleteSnapshot(ctx, entities.CollectionNotes, op.Payload.ID); err != nil {
			return 0, err
		}
		return 0, e.store.Remove(ctx, op.QueueID)

	default:
		return 0, &remote.Error{
			Class: remote.ClassClientRejected,
			Op:    "replay",
			Err:   fmt.Errorf("%w: kind %q", entities.ErrInvalidOperation, op.Kind),
		}
	}
}

func (e *SyncEngine) storageFailure(ctx context.Context, step string, err error) error {
	logger.Log(ctx).Error(ctx, "local storage failure during sync", zap.String("step", step), zap.Error(err))
	e.notifier.Publish(ctx, entities.Event{
		Kind:    entities.EventStorageFailure,
		Message: MsgStorageFailure,
		Error:   err.Error(),
	})
	return fmt.Errorf("%s: %w", step, err)
}

var _ services.SyncService = (*SyncEngine)(nil)

// discardable сообщает, что сервер окончательно отклонил операцию.
// Локально истекшая сессия не удаляет операцию: очередь ждет нового токена.
func discardable(err error) bool {
	if errors.Is(err, remote.ErrSessionExpired) {
		return false
	}
	class := remote.ClassOf(err)
	return class == remote.ClassClientRejected || class == remote.ClassUnauthorized
}
