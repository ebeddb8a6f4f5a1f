package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/ports/remote"
	"notesync/internal/offline/ports/repositories"
	"notesync/internal/offline/ports/services"
	"notesync/pkg/logger"
)

// NoteService реализует services.NoteService: сначала сервер, при отказе - локальное хранилище и очередь.
type NoteService struct {
	store  repositories.LocalStore
	api    remote.NoteAPI
	conn   services.ConnectivityService
	engine *SyncEngine
	now    func() time.Time
}

// NewNoteService создает фасад заметок. Изменения очереди упорядочиваются через engine.
func NewNoteService(
	store repositories.LocalStore,
	api remote.NoteAPI,
	conn services.ConnectivityService,
	engine *SyncEngine,
) *NoteService {
	return &NoteService{
		store:  store,
		api:    api,
		conn:   conn,
		engine: engine,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// fallback сообщает, нужно ли переходить на локальное хранилище после ошибки сервера.
func fallback(err error) bool {
	return remote.ClassOf(err) != remote.ClassUnauthorized
}

// List возвращает страницу заметок.
func (s *NoteService) List(ctx context.Context, q entities.ListQuery) (*entities.NotePage, error) {
	log := logger.Log(ctx).With(zap.String("method", "NoteService.List"))

	if s.conn.IsOnline() {
		page, err := s.api.ListNotes(ctx, q)
		if err == nil {
			page.Source = entities.SourceRemote
			for _, note := range page.Notes {
				if err := s.cache(ctx, note); err != nil {
					log.Warn(ctx, "failed to refresh local cache", zap.String("noteID", note.ID), zap.Error(err))
				}
			}
			return page, nil
		}
		if !fallback(err) {
			return nil, err
		}
		log.Warn(ctx, "remote list failed, using local data", zap.Error(err))
	}

	snaps, err := s.store.ListSnapshots(ctx, entities.CollectionNotes)
	if err != nil {
		return nil, err
	}

	notes := make([]*entities.Note, 0, len(snaps))
	for _, snap := range snaps {
		note, err := entities.NoteFromSnapshot(snap)
		if err != nil {
			log.Warn(ctx, "skipping unreadable snapshot", zap.String("noteID", snap.ID), zap.Error(err))
			continue
		}
		if !note.Matches(q.Search) {
			continue
		}
		if q.CategoryID != "" && !note.InCategory(q.CategoryID) {
			continue
		}
		if q.TagID != "" && !note.HasTag(q.TagID) {
			continue
		}
		notes = append(notes, note)
	}

	page := entities.Paginate(notes, q.Page, q.Limit)
	page.Source = entities.SourceLocal
	return page, nil
}

// Get возвращает заметку по идентификатору.
func (s *NoteService) Get(ctx context.Context, id string) (*entities.Note, error) {
	log := logger.Log(ctx).With(zap.String("method", "NoteService.Get"), zap.String("noteID", id))

	id, err := s.store.ResolveAlias(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.conn.IsOnline() && !entities.IsLocalID(id) {
		note, err := s.api.GetNote(ctx, id)
		if err == nil {
			if err := s.cache(ctx, note); err != nil {
				log.Warn(ctx, "failed to refresh local cache", zap.Error(err))
			}
			return note, nil
		}
		if !fallback(err) {
			return nil, err
		}
		log.Warn(ctx, "remote get failed, using local data", zap.Error(err))
	}

	return s.localNote(ctx, id)
}

// Create создает заметку. Локальный идентификатор назначается до выбора пути
// и передается серверу как ключ идемпотентности.
func (s *NoteService) Create(ctx context.Context, in entities.NoteInput) (*entities.Note, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", services.ErrInvalidInput)
	}

	localID := entities.NewLocalID()
	log := logger.Log(ctx).With(zap.String("method", "NoteService.Create"), zap.String("localID", localID))

	payload, err := entities.NewPayload(localID, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrInvalidInput, err)
	}

	if s.conn.IsOnline() {
		note, err := s.api.CreateNote(ctx, payload.Fields, localID)
		if err == nil && note != nil && note.ID != "" {
			if err := s.cache(ctx, note); err != nil {
				log.Warn(ctx, "failed to cache created note", zap.Error(err))
			}
			return note, nil
		}
		if err == nil {
			err = remote.NewMalformedError("CreateNote", "response carries no note id")
		}
		if !fallback(err) {
			return nil, err
		}
		log.Warn(ctx, "remote create failed, queueing", zap.Error(err))
	}

	note := entities.NewLocalNote(localID, in, s.now())
	snap, err := note.Snapshot()
	if err != nil {
		return nil, err
	}

	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if err := s.store.PutSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	if _, err := s.store.Enqueue(ctx, entities.OperationCreate, payload); err != nil {
		return nil, err
	}

	log.Info(ctx, "note created locally")
	return note, nil
}

// Update частично обновляет заметку. Заметки с локальным идентификатором или с
// операциями в очереди обновляются только через очередь, чтобы сохранить порядок.
func (s *NoteService) Update(ctx context.Context, id string, patch entities.NotePatch) (*entities.Note, error) {
	log := logger.Log(ctx).With(zap.String("method", "NoteService.Update"), zap.String("noteID", id))

	payload, err := entities.NewPayload(id, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrInvalidInput, err)
	}

	s.engine.mu.Lock()
	id, queued, err := s.route(ctx, id)
	if err != nil || queued {
		defer s.engine.mu.Unlock()
		if err != nil {
			return nil, err
		}
		payload.ID = id
		return s.updateLocally(ctx, payload, patch)
	}
	s.engine.mu.Unlock()

	payload.ID = id
	if s.conn.IsOnline() {
		note, err := s.api.UpdateNote(ctx, id, payload.Fields)
		if err == nil {
			if note == nil {
				return s.localNote(ctx, id)
			}
			if err := s.cache(ctx, note); err != nil {
				log.Warn(ctx, "failed to cache updated note", zap.Error(err))
			}
			return note, nil
		}
		if !fallback(err) {
			return nil, err
		}
		log.Warn(ctx, "remote update failed, queueing", zap.Error(err))
	}

	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return s.updateLocally(ctx, payload, patch)
}

// Delete удаляет заметку.
func (s *NoteService) Delete(ctx context.Context, id string) error {
	log := logger.Log(ctx).With(zap.String("method", "NoteService.Delete"), zap.String("noteID", id))

	s.engine.mu.Lock()
	id, queued, err := s.route(ctx, id)
	if err != nil || queued {
		defer s.engine.mu.Unlock()
		if err != nil {
			return err
		}
		return s.deleteLocally(ctx, id)
	}
	s.engine.mu.Unlock()

	if s.conn.IsOnline() {
		err := s.api.DeleteNote(ctx, id)
		if err == nil {
			if err := s.store.DeleteSnapshot(ctx, entities.CollectionNotes, id); err != nil {
				log.Warn(ctx, "failed to drop cached note", zap.Error(err))
			}
			return nil
		}
		if !fallback(err) {
			return err
		}
		log.Warn(ctx, "remote delete failed, queueing", zap.Error(err))
	}

	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return s.deleteLocally(ctx, id)
}

// route разрешает псевдоним и сообщает, должна ли операция идти сразу в очередь.
// Вызывается под engine.mu.
func (s *NoteService) route(ctx context.Context, id string) (string, bool, error) {
	resolved, err := s.store.ResolveAlias(ctx, id)
	if err != nil {
		return "", false, err
	}
	if entities.IsLocalID(resolved) {
		return resolved, true, nil
	}
	pending, err := s.store.HasPending(ctx, resolved)
	if err != nil {
		return "", false, err
	}
	return resolved, pending, nil
}

// updateLocally применяет патч к снимку и ставит UPDATE в очередь. Без снимка патч
// применяется к пустой заметке. Вызывается под engine.mu.
func (s *NoteService) updateLocally(ctx context.Context, payload entities.Payload, patch entities.NotePatch) (*entities.Note, error) {
	note, err := s.localNote(ctx, payload.ID)
	if errors.Is(err, services.ErrNoteNotFound) {
		note, err = &entities.Note{ID: payload.ID}, nil
	}
	if err != nil {
		return nil, err
	}
	note.Apply(patch, s.now())

	snap, err := note.Snapshot()
	if err != nil {
		return nil, err
	}
	if err := s.store.PutSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	if _, err := s.store.Enqueue(ctx, entities.OperationUpdate, payload); err != nil {
		return nil, err
	}

	logger.Log(ctx).Info(ctx, "note updated locally", zap.String("noteID", payload.ID))
	return note, nil
}

// deleteLocally удаляет снимок и ставит DELETE в очередь. Вызывается под engine.mu.
func (s *NoteService) deleteLocally(ctx context.Context, id string) error {
	if err := s.store.DeleteSnapshot(ctx, entities.CollectionNotes, id); err != nil {
		return err
	}
	if _, err := s.store.Enqueue(ctx, entities.OperationDelete, entities.Payload{ID: id}); err != nil {
		return err
	}

	logger.Log(ctx).Info(ctx, "note deleted locally", zap.String("noteID", id))
	return nil
}

func (s *NoteService) localNote(ctx context.Context, id string) (*entities.Note, error) {
	snap, err := s.store.GetSnapshot(ctx, entities.CollectionNotes, id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", services.ErrNoteNotFound, id)
	}
	return entities.NoteFromSnapshot(snap)
}

// cache сохраняет серверную версию заметки, если по ней нет неотправленных изменений.
func (s *NoteService) cache(ctx context.Context, note *entities.Note) error {
	if note == nil || note.ID == "" {
		return nil
	}

	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	pending, err := s.store.HasPending(ctx, note.ID)
	if err != nil {
		return err
	}
	if pending {
		return nil
	}

	snap, err := note.Snapshot()
	if err != nil {
		return err
	}
	return s.store.PutSnapshot(ctx, snap)
}

var _ services.NoteService = (*NoteService)(nil)
