package config

import "notesync/pkg/logger"

// LoggingConfig представляет конфигурацию логирования.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"NOTESYNC_LOGGER_LEVEL" env-default:"info"`
	Mode       string `yaml:"mode" env:"NOTESYNC_LOGGER_MODE" env-default:"production"`
	File       string `yaml:"file" env:"NOTESYNC_LOGGER_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"NOTESYNC_LOGGER_MAX_SIZE_MB" env-default:"50"`
	MaxBackups int    `yaml:"max_backups" env:"NOTESYNC_LOGGER_MAX_BACKUPS" env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env:"NOTESYNC_LOGGER_MAX_AGE_DAYS" env-default:"14"`
}

// GetFileConfig возвращает настройки файлового приемника логов.
func (c *LoggingConfig) GetFileConfig() logger.FileConfig {
	return logger.FileConfig{
		Path:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}
