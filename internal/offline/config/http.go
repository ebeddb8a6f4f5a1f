package config

import (
	"fmt"
	"time"
)

// HTTPConfig представляет конфигурацию локального HTTP API.
type HTTPConfig struct {
	Host         string        `yaml:"host" env:"NOTESYNC_HTTP_HOST" env-default:"127.0.0.1"`
	Port         int           `yaml:"port" env:"NOTESYNC_HTTP_PORT" env-default:"8090"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"NOTESYNC_HTTP_READ_TIMEOUT" env-default:"5s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"NOTESYNC_HTTP_WRITE_TIMEOUT" env-default:"10s"`
}

// GetAddress возвращает адрес HTTP сервера.
func (c *HTTPConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
