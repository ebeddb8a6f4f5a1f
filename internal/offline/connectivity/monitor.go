// Package connectivity отслеживает переходы между состояниями online и offline.
package connectivity

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"notesync/internal/offline/ports/services"
	"notesync/pkg/logger"
)

// Handler вызывается при смене состояния сети.
type Handler = func(ctx context.Context)

// Monitor хранит двоичное состояние сети и уведомляет подписчиков только о фронтах.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	onOnline  []Handler
	onOffline []Handler
}

// NewMonitor создает монитор с начальным состоянием.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

// IsOnline возвращает текущее состояние.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline регистрирует обработчик перехода offline -> online.
func (m *Monitor) OnOnline(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, h)
}

// OnOffline регистрирует обработчик перехода online -> offline.
func (m *Monitor) OnOffline(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, h)
}

// Set применяет сигнал окружения. Повторный сигнал о том же состоянии ничего не вызывает.
// Обработчики выполняются синхронно, в порядке регистрации, вне блокировки.
func (m *Monitor) Set(ctx context.Context, online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online

	var handlers []Handler
	if online {
		handlers = append(handlers, m.onOnline...)
	} else {
		handlers = append(handlers, m.onOffline...)
	}
	m.mu.Unlock()

	logger.Log(ctx).Info(ctx, "connectivity changed", zap.Bool("online", online))

	for _, h := range handlers {
		h(ctx)
	}

	return true
}

var _ services.ConnectivityService = (*Monitor)(nil)
