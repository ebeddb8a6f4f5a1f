package services

import (
	"context"

	"notesync/internal/offline/domain/entities"
)

// SyncService управляет фоновой синхронизацией очереди.
type SyncService interface {
	// Trigger запускает синхронизацию в фоне. Повторный вызов во время синхронизации игнорируется.
	Trigger()
	Syncing() bool
	// Pending возвращает количество операций в очереди.
	Pending(ctx context.Context) (int, error)
}

// ConnectivityService хранит текущее состояние сети.
type ConnectivityService interface {
	IsOnline() bool
	// Set применяет сигнал окружения и возвращает true, если состояние изменилось.
	Set(ctx context.Context, online bool) bool
	OnOnline(h func(ctx context.Context))
	OnOffline(h func(ctx context.Context))
}

// Notifier публикует уведомления для интерфейса пользователя.
type Notifier interface {
	Publish(ctx context.Context, ev entities.Event) entities.Event
}

// NotificationFeed отдает недавние уведомления.
type NotificationFeed interface {
	Recent(after uint64) []entities.Event
}
