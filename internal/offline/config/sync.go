package config

// SyncConfig настраивает синхронизацию.
type SyncConfig struct {
	// StartOnline - начальное состояние сети до первого сигнала окружения.
	StartOnline bool `yaml:"start_online" env:"NOTESYNC_SYNC_START_ONLINE" env-default:"true"`
	// NotificationBuffer - сколько последних уведомлений хранится для HTTP API.
	NotificationBuffer int `yaml:"notification_buffer" env:"NOTESYNC_SYNC_NOTIFICATION_BUFFER" env-default:"100"`
}
