// Package notify рассылает уведомления о синхронизации подписчикам и хранит последние из них.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/ports/services"
	"notesync/pkg/logger"
)

// DefaultCapacity - размер буфера последних уведомлений по умолчанию.
const DefaultCapacity = 100

// Hub публикует уведомления. Медленный подписчик теряет уведомления, но не блокирует публикацию.
type Hub struct {
	mu       sync.Mutex
	seq      uint64
	capacity int
	recent   []entities.Event
	subs     map[int]chan entities.Event
	nextSub  int
	now      func() time.Time
}

// NewHub создает хаб с буфером на capacity уведомлений.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		capacity: capacity,
		subs:     make(map[int]chan entities.Event),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish назначает уведомлению номер и время и рассылает его.
func (h *Hub) Publish(ctx context.Context, ev entities.Event) entities.Event {
	h.mu.Lock()
	h.seq++
	ev.Seq = h.seq
	if ev.At.IsZero() {
		ev.At = h.now()
	}

	h.recent = append(h.recent, ev)
	if len(h.recent) > h.capacity {
		h.recent = h.recent[len(h.recent)-h.capacity:]
	}

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()

	fields := []zap.Field{zap.String("kind", string(ev.Kind)), zap.Uint64("seq", ev.Seq)}
	if ev.QueueID != 0 {
		fields = append(fields, zap.Int64("queueID", ev.QueueID))
	}
	if ev.Error != "" {
		fields = append(fields, zap.String("error", ev.Error))
	}
	logger.Log(ctx).Info(ctx, ev.Message, fields...)

	return ev
}

// Subscribe возвращает канал уведомлений и функцию отписки.
func (h *Hub) Subscribe(buffer int) (<-chan entities.Event, func()) {
	ch := make(chan entities.Event, buffer)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Recent возвращает сохраненные уведомления с номером больше after.
func (h *Hub) Recent(after uint64) []entities.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]entities.Event, 0, len(h.recent))
	for _, ev := range h.recent {
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out
}

var (
	_ services.Notifier         = (*Hub)(nil)
	_ services.NotificationFeed = (*Hub)(nil)
)
