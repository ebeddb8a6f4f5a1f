package entities

import "time"

// EventKind - тип уведомления для интерфейса пользователя.
type EventKind string

// Виды уведомлений.
const (
	EventSyncStarted      EventKind = "sync_started"
	EventSyncComplete     EventKind = "sync_complete"
	EventSyncPaused       EventKind = "sync_paused"
	EventChangesDiscarded EventKind = "changes_discarded"
	EventWentOffline      EventKind = "went_offline"
	EventWentOnline       EventKind = "went_online"
	EventStorageFailure   EventKind = "storage_failure"
)

// Event - уведомление, пригодное для показа во всплывающем сообщении.
type Event struct {
	Seq       uint64        `json:"seq"`
	Kind      EventKind     `json:"kind"`
	Message   string        `json:"message"`
	QueueID   int64         `json:"queueId,omitempty"`
	Operation OperationKind `json:"operation,omitempty"`
	EntityID  string        `json:"entityId,omitempty"`
	Error     string        `json:"error,omitempty"`
	Replayed  int           `json:"replayed,omitempty"`
	Discarded int           `json:"discarded,omitempty"`
	At        time.Time     `json:"at"`
}
