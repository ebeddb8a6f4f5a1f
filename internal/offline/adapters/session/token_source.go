// Package session хранит учетные данные сессии, которыми подписываются запросы к серверу.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"notesync/internal/offline/ports/remote"
	"notesync/pkg/logger"
)

// MsgSessionExpired - сообщение об истекшем токене.
const MsgSessionExpired = "session expired"

// Claims - утверждения токена доступа, выданного сервисом авторизации.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenSource реализует remote.CredentialSource.
// Подпись токена не проверяется: это делает сервер, клиенту нужен только срок действия.
type TokenSource struct {
	mu     sync.RWMutex
	token  string
	claims *Claims
	now    func() time.Time
}

// NewTokenSource создает источник с начальным токеном. Пустой токен допустим.
func NewTokenSource(token string) *TokenSource {
	s := &TokenSource{now: time.Now}
	s.Set(token)
	return s
}

// Set заменяет токен сессии.
func (s *TokenSource) Set(token string) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		claims = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.claims = claims
}

// Token возвращает текущий токен. Для JWT с истекшим сроком возвращает remote.ErrSessionExpired
// без обращения к серверу. Токены другого формата передаются как есть.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token, claims := s.token, s.claims
	s.mu.RUnlock()

	if token == "" || claims == nil || claims.ExpiresAt == nil {
		return token, nil
	}

	if !s.now().Before(claims.ExpiresAt.Time) {
		logger.Log(ctx).Warn(ctx, MsgSessionExpired,
			zap.String("userID", claims.UserID),
			zap.Time("expiredAt", claims.ExpiresAt.Time))
		return "", remote.NewSessionExpiredError("Token", MsgSessionExpired)
	}
	return token, nil
}

// UserID возвращает идентификатор пользователя из токена, если он есть.
func (s *TokenSource) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return ""
	}
	return s.claims.UserID
}

var _ remote.CredentialSource = (*TokenSource)(nil)
