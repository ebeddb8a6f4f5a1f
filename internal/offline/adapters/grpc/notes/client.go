// Package notes содержит gRPC-клиент удаленного API заметок.
// Сообщения передаются как google.protobuf.Struct в JSON-форме REST API.
package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/ports/remote"
	"notesync/pkg/logger"
)

// ServiceName - полное имя gRPC-сервиса заметок.
const ServiceName = "notes.v1.NoteService"

// Ключи метаданных.
const (
	MetadataAuthorization  = "authorization"
	MetadataIdempotencyKey = "idempotency-key"
	MetadataRequestID      = "x-request-id"
)

// Константы для логирования.
const (
	LogMethodCreateNote = "CreateNote"
	LogMethodGetNote    = "GetNote"
	LogMethodListNotes  = "ListNotes"
	LogMethodUpdateNote = "UpdateNote"
	LogMethodDeleteNote = "DeleteNote"

	ErrorFailedToConnect = "failed to create notes service client"
	ErrorFailedToClose   = "failed to close notes service connection"
)

// Client реализует remote.NoteAPI поверх gRPC.
type Client struct {
	conn  *grpc.ClientConn
	creds remote.CredentialSource
}

// NewClient создает клиент. Соединение устанавливается лениво, поэтому клиент
// можно создать без сети.
func NewClient(address string, creds remote.CredentialSource, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrorFailedToConnect, err)
	}

	return &Client{conn: conn, creds: creds}, nil
}

// WithCallTimeout ограничивает длительность каждого вызова. 0 - без ограничения.
func WithCallTimeout(timeout time.Duration) grpc.DialOption {
	return grpc.WithUnaryInterceptor(func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if timeout <= 0 {
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return invoker(callCtx, method, req, reply, cc, opts...)
	})
}

// formatAuthorizationToken добавляет префикс "Bearer ", если его нет.
func formatAuthorizationToken(token string) string {
	if token == "" {
		return ""
	}
	if !strings.HasPrefix(token, "Bearer ") {
		return "Bearer " + token
	}
	return token
}

type noteEnvelope struct {
	Note *entities.Note `json:"note"`
}

type listEnvelope struct {
	Notes      []*entities.Note    `json:"notes"`
	Pagination entities.Pagination `json:"pagination"`
}

// ListNotes получает страницу заметок.
func (c *Client) ListNotes(ctx context.Context, q entities.ListQuery) (*entities.NotePage, error) {
	req := map[string]any{}
	if q.Page > 0 {
		req["page"] = q.Page
	}
	if q.Limit > 0 {
		req["limit"] = q.Limit
	}
	if q.Search != "" {
		req["search"] = q.Search
	}
	if q.CategoryID != "" {
		req["categoryId"] = q.CategoryID
	}
	if q.TagID != "" {
		req["tagId"] = q.TagID
	}

	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", LogMethodListNotes, err)
	}

	var env listEnvelope
	if err := c.invoke(ctx, LogMethodListNotes, in, &env, ""); err != nil {
		return nil, err
	}
	if env.Notes == nil {
		env.Notes = []*entities.Note{}
	}
	return &entities.NotePage{Notes: env.Notes, Pagination: env.Pagination}, nil
}

// GetNote получает заметку.
func (c *Client) GetNote(ctx context.Context, id string) (*entities.Note, error) {
	in, err := structpb.NewStruct(map[string]any{"noteId": id})
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", LogMethodGetNote, err)
	}

	var env noteEnvelope
	if err := c.invoke(ctx, LogMethodGetNote, in, &env, ""); err != nil {
		return nil, err
	}
	if env.Note == nil {
		return nil, remote.NewMalformedError(LogMethodGetNote, "response carries no note")
	}
	return env.Note, nil
}

// CreateNote создает заметку. Ключ идемпотентности передается в метаданных.
func (c *Client) CreateNote(ctx context.Context, fields json.RawMessage, idempotencyKey string) (*entities.Note, error) {
	in, err := fieldsStruct(fields)
	if err != nil {
		return nil, &remote.Error{Class: remote.ClassClientRejected, Op: LogMethodCreateNote, Err: err}
	}

	var env noteEnvelope
	if err := c.invoke(ctx, LogMethodCreateNote, in, &env, idempotencyKey); err != nil {
		return nil, err
	}
	if env.Note == nil {
		return nil, remote.NewMalformedError(LogMethodCreateNote, "response carries no note")
	}
	return env.Note, nil
}

// UpdateNote частично обновляет заметку.
func (c *Client) UpdateNote(ctx context.Context, id string, fields json.RawMessage) (*entities.Note, error) {
	patch, err := fieldsStruct(fields)
	if err != nil {
		return nil, &remote.Error{Class: remote.ClassClientRejected, Op: LogMethodUpdateNote, Err: err}
	}

	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"noteId": structpb.NewStringValue(id),
		"fields": structpb.NewStructValue(patch),
	}}

	var env noteEnvelope
	if err := c.invoke(ctx, LogMethodUpdateNote, in, &env, ""); err != nil {
		return nil, err
	}
	return env.Note, nil
}

// DeleteNote удаляет заметку.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	in, err := structpb.NewStruct(map[string]any{"noteId": id})
	if err != nil {
		return fmt.Errorf("build %s request: %w", LogMethodDeleteNote, err)
	}
	return c.invoke(ctx, LogMethodDeleteNote, in, nil, "")
}

// Close закрывает соединение.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("%s: %w", ErrorFailedToClose, err)
	}
	return nil
}

func fieldsStruct(fields json.RawMessage) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if len(fields) == 0 {
		return s, nil
	}
	if err := protojson.Unmarshal(fields, s); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return s, nil
}

// invoke выполняет унарный вызов и декодирует ответ в out, если out не nil.
func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, out any, idempotencyKey string) error {
	log := logger.Log(ctx).With(zap.String("method", method))

	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}

	md := metadata.MD{}
	if token != "" {
		md.Set(MetadataAuthorization, formatAuthorizationToken(token))
	}
	if idempotencyKey != "" {
		md.Set(MetadataIdempotencyKey, idempotencyKey)
	}
	if requestID, ok := logger.GetRequestID(ctx); ok && requestID != "" {
		md.Set(MetadataRequestID, requestID)
	}
	outCtx := metadata.NewOutgoingContext(ctx, md)

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(outCtx, "/"+ServiceName+"/"+method, in, resp); err != nil {
		rerr := classify(method, err)
		log.Debug(ctx, "call failed", zap.String("class", rerr.Class.String()), zap.Error(err))
		return rerr
	}

	if out == nil {
		return nil
	}
	data, err := protojson.Marshal(resp)
	if err != nil {
		return remote.NewMalformedError(method, err.Error())
	}
	if err := json.Unmarshal(data, out); err != nil {
		return remote.NewMalformedError(method, err.Error())
	}
	return nil
}

// classify относит gRPC-статус к классу отказа.
func classify(method string, err error) *remote.Error {
	st, ok := status.FromError(err)
	if !ok {
		return remote.NewTransportError(method, err)
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return remote.NewTransportError(method, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return &remote.Error{Class: remote.ClassUnauthorized, Op: method, Message: st.Message(), Err: err}
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists,
		codes.FailedPrecondition, codes.OutOfRange, codes.Unimplemented:
		return &remote.Error{Class: remote.ClassClientRejected, Op: method, Message: st.Message(), Err: err}
	default:
		return &remote.Error{Class: remote.ClassTransient, Op: method, Message: st.Message(), Err: err}
	}
}

var _ remote.NoteAPI = (*Client)(nil)
