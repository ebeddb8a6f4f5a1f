package notes_test

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"notesync/internal/offline/adapters/grpc/notes"
	"notesync/internal/offline/domain/entities"
	"notesync/internal/offline/ports/remote"
)

type tokenFunc func(ctx context.Context) (string, error)

func (f tokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

type unaryFunc func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

// fakeServer записывает входящие запросы и отвечает заданными функциями.
type fakeServer struct {
	mu       sync.Mutex
	metadata map[string]metadata.MD
	requests map[string]*structpb.Struct
	handlers map[string]unaryFunc
}

func (s *fakeServer) handle(method string) grpc.MethodHandler {
	return func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		in := &structpb.Struct{}
		if err := dec(in); err != nil {
			return nil, err
		}

		md, _ := metadata.FromIncomingContext(ctx)
		s.mu.Lock()
		s.metadata[method] = md
		s.requests[method] = in
		fn := s.handlers[method]
		s.mu.Unlock()

		if fn == nil {
			return nil, status.Error(codes.Unimplemented, "not implemented")
		}
		return fn(ctx, in)
	}
}

func startServer(t *testing.T, handlers map[string]unaryFunc, token string, opts ...grpc.DialOption) (*notes.Client, *fakeServer) {
	t.Helper()

	fake := &fakeServer{
		metadata: make(map[string]metadata.MD),
		requests: make(map[string]*structpb.Struct),
		handlers: handlers,
	}

	methods := []string{"ListNotes", "GetNote", "CreateNote", "UpdateNote", "DeleteNote"}
	desc := grpc.ServiceDesc{
		ServiceName: notes.ServiceName,
		HandlerType: (*any)(nil),
	}
	for _, m := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{MethodName: m, Handler: fake.handle(m)})
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&desc, fake)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialOpts := append([]grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	}, opts...)
	client, err := notes.NewClient("passthrough:///bufnet",
		tokenFunc(func(context.Context) (string, error) { return token, nil }),
		dialOpts...,
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, fake
}

func noteResponse(t *testing.T, note map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(map[string]any{"note": note})
	require.NoError(t, err)
	return s
}

func TestClient_CreateNote(t *testing.T) {
	client, fake := startServer(t, map[string]unaryFunc{
		"CreateNote": func(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return noteResponse(t, map[string]any{
				"id":    "srv-1",
				"title": in.GetFields()["title"].GetStringValue(),
			}), nil
		},
	}, "secret")

	note, err := client.CreateNote(context.Background(), json.RawMessage(`{"title":"A","tagIds":["t1"]}`), "local-1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", note.ID)
	assert.Equal(t, "A", note.Title)

	md := fake.metadata["CreateNote"]
	assert.Equal(t, []string{"Bearer secret"}, md.Get(notes.MetadataAuthorization))
	assert.Equal(t, []string{"local-1"}, md.Get(notes.MetadataIdempotencyKey))

	tags := fake.requests["CreateNote"].GetFields()["tagIds"].GetListValue().GetValues()
	require.Len(t, tags, 1)
	assert.Equal(t, "t1", tags[0].GetStringValue())
}

func TestClient_CreateNoteWithoutNoteIsMalformed(t *testing.T) {
	client, _ := startServer(t, map[string]unaryFunc{
		"CreateNote": func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return &structpb.Struct{}, nil
		},
	}, "")

	_, err := client.CreateNote(context.Background(), json.RawMessage(`{"title":"A"}`), "local-1")
	require.ErrorIs(t, err, remote.ErrMalformedResponse)
	assert.Equal(t, remote.ClassTransient, remote.ClassOf(err))
}

func TestClient_UpdateAndDelete(t *testing.T) {
	client, fake := startServer(t, map[string]unaryFunc{
		"UpdateNote": func(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return noteResponse(t, map[string]any{
				"id":    in.GetFields()["noteId"].GetStringValue(),
				"title": in.GetFields()["fields"].GetStructValue().GetFields()["title"].GetStringValue(),
			}), nil
		},
		"DeleteNote": func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return &structpb.Struct{}, nil
		},
	}, "Bearer already")

	note, err := client.UpdateNote(context.Background(), "srv-1", json.RawMessage(`{"title":"B"}`))
	require.NoError(t, err)
	assert.Equal(t, "srv-1", note.ID)
	assert.Equal(t, "B", note.Title)

	require.NoError(t, client.DeleteNote(context.Background(), "srv-1"))
	assert.Equal(t, "srv-1", fake.requests["DeleteNote"].GetFields()["noteId"].GetStringValue())
	assert.Equal(t, []string{"Bearer already"}, fake.metadata["DeleteNote"].Get(notes.MetadataAuthorization))
	assert.Empty(t, fake.metadata["DeleteNote"].Get(notes.MetadataIdempotencyKey))
}

func TestClient_ListAndGet(t *testing.T) {
	client, fake := startServer(t, map[string]unaryFunc{
		"ListNotes": func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return structpb.NewStruct(map[string]any{
				"notes": []any{
					map[string]any{"id": "n1", "title": "A", "isPublic": true},
				},
				"pagination": map[string]any{"page": 1, "limit": 10, "total": 1, "totalPages": 1},
			})
		},
		"GetNote": func(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return noteResponse(t, map[string]any{"id": in.GetFields()["noteId"].GetStringValue()}), nil
		},
	}, "")

	page, err := client.ListNotes(context.Background(), entities.ListQuery{Page: 1, Search: "a"})
	require.NoError(t, err)
	require.Len(t, page.Notes, 1)
	assert.True(t, page.Notes[0].IsPublic)
	assert.Equal(t, entities.Pagination{Page: 1, Limit: 10, Total: 1, TotalPages: 1}, page.Pagination)
	assert.Equal(t, "a", fake.requests["ListNotes"].GetFields()["search"].GetStringValue())
	assert.Empty(t, fake.metadata["ListNotes"].Get(notes.MetadataAuthorization))

	note, err := client.GetNote(context.Background(), "n7")
	require.NoError(t, err)
	assert.Equal(t, "n7", note.ID)
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.Unauthenticated, remote.ErrUnauthorized},
		{codes.PermissionDenied, remote.ErrUnauthorized},
		{codes.NotFound, remote.ErrClientRejected},
		{codes.InvalidArgument, remote.ErrClientRejected},
		{codes.Internal, remote.ErrTransient},
		{codes.ResourceExhausted, remote.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			client, _ := startServer(t, map[string]unaryFunc{
				"DeleteNote": func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
					return nil, status.Error(tt.code, "nope")
				},
			}, "")

			err := client.DeleteNote(context.Background(), "n1")
			require.ErrorIs(t, err, tt.want)
			assert.False(t, remote.IsTransport(err))
		})
	}
}

func TestClient_Unavailable(t *testing.T) {
	client, err := notes.NewClient("passthrough:///bufnet",
		tokenFunc(func(context.Context) (string, error) { return "", nil }),
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return nil, net.ErrClosed
		}),
	)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.GetNote(context.Background(), "n1")
	require.ErrorIs(t, err, remote.ErrTransient)
	assert.True(t, remote.IsTransport(err))
}

func TestClient_CallTimeout(t *testing.T) {
	client, _ := startServer(t, map[string]unaryFunc{
		"GetNote": func(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
			<-ctx.Done()
			return nil, status.FromContextError(ctx.Err()).Err()
		},
	}, "", notes.WithCallTimeout(50*time.Millisecond))

	_, err := client.GetNote(context.Background(), "srv-1")
	require.Error(t, err)
	assert.Equal(t, remote.ClassTransient, remote.ClassOf(err))
	assert.True(t, remote.IsTransport(err))
}
