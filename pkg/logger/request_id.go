package logger

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// DrainIDPrefix отличает фоновые проходы синхронизации от HTTP-запросов в журналах
// и в заголовках исходящих вызовов.
const DrainIDPrefix = "drain-"

type requestIDKey struct{}

// NewRequestIDContext связывает контекст с идентификатором запроса. Пустой id генерируется.
func NewRequestIDContext(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = GenerateRequestID()
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// NewDrainContext помечает контекст фонового прохода по очереди собственным идентификатором.
func NewDrainContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestIDKey{}, DrainIDPrefix+GenerateRequestID())
}

// IsDrainContext сообщает, что контекст принадлежит фоновому проходу.
func IsDrainContext(ctx context.Context) bool {
	id, ok := GetRequestID(ctx)
	return ok && strings.HasPrefix(id, DrainIDPrefix)
}

// GetRequestID извлекает идентификатор запроса из контекста.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// GenerateRequestID генерирует новый идентификатор.
func GenerateRequestID() string {
	return uuid.NewString()
}
