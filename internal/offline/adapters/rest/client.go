// Package rest содержит клиент удаленного API заметок поверх HTTP/JSON.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/ports/remote"
	"notesync/pkg/logger"
)

// Заголовки запросов.
const (
	HeaderAuthorization  = "Authorization"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestID      = "X-Request-ID"
)

const (
	maxBodySize    = 4 << 20
	maxMessageSize = 200
)

// ErrResponseTooLarge - успешный ответ превышает допустимый размер и не может быть разобран.
var ErrResponseTooLarge = errors.New("response body too large")

// Config настраивает клиент.
type Config struct {
	BaseURL string
	// Timeout ограничивает один запрос. 0 - без ограничения, зависание сервера останавливает очередь.
	Timeout time.Duration
}

// Client реализует remote.NoteAPI.
type Client struct {
	base  *url.URL
	http  *http.Client
	creds remote.CredentialSource
}

// Option изменяет клиент.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient создает клиент удаленного API.
func NewClient(cfg Config, creds remote.CredentialSource, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", cfg.BaseURL)
	}

	c := &Client{
		base:  base,
		http:  &http.Client{Timeout: cfg.Timeout},
		creds: creds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type noteEnvelope struct {
	Note *entities.Note `json:"note"`
}

type listEnvelope struct {
	Notes      []*entities.Note    `json:"notes"`
	Pagination entities.Pagination `json:"pagination"`
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ListNotes получает страницу заметок.
func (c *Client) ListNotes(ctx context.Context, q entities.ListQuery) (*entities.NotePage, error) {
	const op = "ListNotes"

	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.CategoryID != "" {
		params.Set("categoryId", q.CategoryID)
	}
	if q.TagID != "" {
		params.Set("tagId", q.TagID)
	}

	body, err := c.do(ctx, op, http.MethodGet, "/notes", params, nil, "")
	if err != nil {
		return nil, err
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, remote.NewMalformedError(op, err.Error())
	}
	if env.Notes == nil {
		env.Notes = []*entities.Note{}
	}
	return &entities.NotePage{Notes: env.Notes, Pagination: env.Pagination}, nil
}

// GetNote получает заметку.
func (c *Client) GetNote(ctx context.Context, id string) (*entities.Note, error) {
	const op = "GetNote"

	body, err := c.do(ctx, op, http.MethodGet, notePath(id), nil, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeNote(op, body, true)
}

// CreateNote создает заметку. idempotencyKey передается в заголовке Idempotency-Key.
func (c *Client) CreateNote(ctx context.Context, fields json.RawMessage, idempotencyKey string) (*entities.Note, error) {
	const op = "CreateNote"

	body, err := c.do(ctx, op, http.MethodPost, "/notes", nil, fields, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return decodeNote(op, body, true)
}

// UpdateNote частично обновляет заметку. Пустой ответ допустим.
func (c *Client) UpdateNote(ctx context.Context, id string, fields json.RawMessage) (*entities.Note, error) {
	const op = "UpdateNote"

	body, err := c.do(ctx, op, http.MethodPut, notePath(id), nil, fields, "")
	if err != nil {
		return nil, err
	}
	return decodeNote(op, body, false)
}

// DeleteNote удаляет заметку.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	_, err := c.do(ctx, "DeleteNote", http.MethodDelete, notePath(id), nil, nil, "")
	return err
}

// Close освобождает простаивающие соединения.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func notePath(id string) string {
	return "/notes/" + url.PathEscape(id)
}

func decodeNote(op string, body []byte, required bool) (*entities.Note, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		if required {
			return nil, remote.NewMalformedError(op, "empty response body")
		}
		return nil, nil
	}

	var env noteEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, remote.NewMalformedError(op, err.Error())
	}
	if env.Note == nil {
		if required {
			return nil, remote.NewMalformedError(op, "response carries no note")
		}
		return nil, nil
	}
	return env.Note, nil
}

// do выполняет запрос и классифицирует ответ. path передается в экранированном виде.
// Возвращает тело успешного ответа.
func (c *Client) do(
	ctx context.Context,
	op, method, path string,
	params url.Values,
	payload []byte,
	idempotencyKey string,
) ([]byte, error) {
	log := logger.Log(ctx).With(zap.String("method", "rest."+op), zap.String("path", path))

	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	if u.Path, err = url.PathUnescape(u.RawPath); err != nil {
		return nil, remote.NewTransportError(op, err)
	}
	u.RawQuery = params.Encode()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, remote.NewTransportError(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(HeaderAuthorization, "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idempotencyKey)
	}
	if requestID, ok := logger.GetRequestID(ctx); ok && requestID != "" {
		req.Header.Set(HeaderRequestID, requestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug(ctx, "request failed", zap.Error(err))
		return nil, remote.NewTransportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, remote.NewTransportError(op, err)
	}
	oversized := len(body) > maxBodySize
	if oversized {
		body = body[:maxBodySize]
	}

	class, failed := remote.ClassifyStatus(resp.StatusCode)
	if !failed {
		if oversized {
			// Повтор вернет тот же ответ.
			log.Warn(ctx, "response body exceeds limit", zap.Int("limit", maxBodySize))
			return nil, &remote.Error{
				Class:      remote.ClassClientRejected,
				Op:         op,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, maxBodySize),
			}
		}
		return body, nil
	}

	rerr := &remote.Error{
		Class:      class,
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
	}
	log.Debug(ctx, "request rejected", zap.Int("status", resp.StatusCode), zap.String("class", class.String()))
	return nil, rerr
}

func errorMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxMessageSize {
		cut := maxMessageSize
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}

var _ remote.NoteAPI = (*Client)(nil)
