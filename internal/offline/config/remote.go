package config

import "time"

// Транспорты удаленного API.
const (
	TransportREST = "rest"
	TransportGRPC = "grpc"
)

// RemoteConfig описывает подключение к удаленному API заметок.
type RemoteConfig struct {
	Transport   string `yaml:"transport" env:"NOTESYNC_REMOTE_TRANSPORT" env-default:"rest"`
	BaseURL     string `yaml:"base_url" env:"NOTESYNC_REMOTE_BASE_URL" env-default:"http://localhost:3000/api"`
	GRPCAddress string `yaml:"grpc_address" env:"NOTESYNC_REMOTE_GRPC_ADDRESS" env-default:"localhost:50052"`
	Token       string `yaml:"token" env:"NOTESYNC_REMOTE_TOKEN"`
	// Timeout ограничивает один запрос. 0 - без ограничения.
	Timeout time.Duration `yaml:"timeout" env:"NOTESYNC_REMOTE_TIMEOUT" env-default:"0s"`
}
