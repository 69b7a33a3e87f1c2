package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"llamatalks-be/internal/dto"
	"llamatalks-be/internal/pkg/apperror"
	"llamatalks-be/internal/pkg/logger"
	"llamatalks-be/internal/pkg/serverutils"
	"llamatalks-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatService struct {
	lastReq   *dto.ChatRequest
	lastTitle string
	events    []dto.StreamEvent
	err       error
}

func (s *stubChatService) Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.ChatResponse{Message: "pong", ConversationId: "c-1"}, nil
}

func (s *stubChatService) StreamChat(ctx context.Context, req *dto.ChatRequest) (<-chan dto.StreamEvent, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan dto.StreamEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (s *stubChatService) GetAllConversations(ctx context.Context) ([]*dto.ConversationDetail, error) {
	return []*dto.ConversationDetail{{
		ConversationId: "c-1",
		Title:          "hello",
		Messages: []*dto.MessageResponse{
			{Content: "hello", Role: "USER"},
			{Content: "hi there", Role: "AI"},
		},
	}}, nil
}

func (s *stubChatService) GetConversationById(ctx context.Context, id string) (*dto.ConversationDetail, error) {
	if id != "c-1" {
		return nil, apperror.ConversationNotFound(id)
	}
	return &dto.ConversationDetail{ConversationId: id, Messages: []*dto.MessageResponse{}}, nil
}

func (s *stubChatService) DeleteConversation(ctx context.Context, id string) error {
	if id != "c-1" {
		return apperror.ConversationNotFound(id)
	}
	return nil
}

func (s *stubChatService) ChangeTitle(ctx context.Context, id string, title string) (*dto.ConversationSummary, error) {
	s.lastTitle = title
	return &dto.ConversationSummary{ConversationId: id, Title: title}, nil
}

func newTestApp(register func(r fiber.Router)) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: serverutils.NewErrorHandler(logger.NewNopLogger())})
	register(app.Group("/api"))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, int((5 * time.Second).Milliseconds()))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestChatController_Routes(t *testing.T) {
	stub := &stubChatService{}
	app := newTestApp(NewChatController(stub, logger.NewNopLogger()).RegisterRoutes)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantType string
	}{
		{name: "chat", method: "POST", path: "/api/chat", body: `{"message":"ping"}`, wantCode: 200},
		{name: "list", method: "GET", path: "/api/chat", wantCode: 200},
		{name: "show", method: "GET", path: "/api/chat/c-1", wantCode: 200},
		{name: "show missing", method: "GET", path: "/api/chat/nope", wantCode: 404, wantType: "CONVERSATION_NOT_FOUND"},
		{name: "delete", method: "DELETE", path: "/api/chat/c-1", wantCode: 200},
		{name: "delete missing", method: "DELETE", path: "/api/chat/nope", wantCode: 404, wantType: "CONVERSATION_NOT_FOUND"},
		{name: "websocket without upgrade", method: "GET", path: "/api/chat/ws", wantCode: 426, wantType: "HTTP_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doJSON(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, body["error_type"])
				assert.Equal(t, false, body["success"])
			} else {
				assert.Equal(t, true, body["success"])
			}
		})
	}

	assert.Equal(t, "ping", stub.lastReq.Message)
}

func TestChatController_ListIncludesMessages(t *testing.T) {
	app := newTestApp(NewChatController(&stubChatService{}, logger.NewNopLogger()).RegisterRoutes)

	code, body := doJSON(t, app, "GET", "/api/chat", "")
	assert.Equal(t, 200, code)

	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	conversation := data[0].(map[string]interface{})
	assert.Equal(t, "c-1", conversation["conversationId"])
	assert.Equal(t, "hello", conversation["title"])
	assert.Contains(t, conversation, "startedAt")

	messages := conversation["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "USER", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "hi there", messages[1].(map[string]interface{})["content"])
}

func TestChatController_ChatError(t *testing.T) {
	stub := &stubChatService{err: apperror.UpstreamModel("Chat model call failed", errors.New("secret upstream detail"))}
	app := newTestApp(NewChatController(stub, logger.NewNopLogger()).RegisterRoutes)

	code, body := doJSON(t, app, "POST", "/api/chat", `{"message":"ping","conversationId":"c-1"}`)
	assert.Equal(t, 502, code)
	assert.Equal(t, "UPSTREAM_MODEL_ERROR", body["error_type"])
	assert.Equal(t, "Chat model call failed", body["message"])
	assert.Equal(t, "c-1", stub.lastReq.ConversationId)
}

func TestChatController_ChangeTitleBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "json object", body: `{"title":"New title"}`, want: "New title"},
		{name: "json string", body: `"Quoted title"`, want: "Quoted title"},
		{name: "raw text", body: `Plain title`, want: "Plain title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubChatService{}
			app := newTestApp(NewChatController(stub, logger.NewNopLogger()).RegisterRoutes)

			code, body := doJSON(t, app, "PUT", "/api/chat/c-1", tt.body)
			assert.Equal(t, 200, code)
			assert.Equal(t, tt.want, stub.lastTitle)
			data := body["data"].(map[string]interface{})
			assert.Equal(t, tt.want, data["title"])
		})
	}
}

func TestChatController_Stream(t *testing.T) {
	stub := &stubChatService{events: []dto.StreamEvent{
		{Message: "Hel", ConversationId: "c-1"},
		{Message: "lo", ConversationId: "c-1"},
		{ConversationId: "c-1", Err: apperror.UpstreamModel("Chat model stream failed", nil)},
	}}
	app := newTestApp(NewChatController(stub, logger.NewNopLogger()).RegisterRoutes)

	req := httptest.NewRequest("POST", "/api/chat/stream", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, int((5 * time.Second).Milliseconds()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	frames := strings.Split(strings.TrimSpace(string(raw)), "\n\n")
	require.Len(t, frames, 3)
	assert.Equal(t, `data: {"message":"Hel","conversationId":"c-1"}`, frames[0])
	assert.Equal(t, `data: {"message":"lo","conversationId":"c-1"}`, frames[1])
	assert.True(t, strings.HasPrefix(frames[2], "event: error\ndata: "), frames[2])
	assert.Contains(t, frames[2], `"error_type":"UPSTREAM_MODEL_ERROR"`)
}

func TestChatController_StreamRejectsBeforeStreaming(t *testing.T) {
	stub := &stubChatService{err: apperror.InvalidInput("Message cannot be empty")}
	app := newTestApp(NewChatController(stub, logger.NewNopLogger()).RegisterRoutes)

	code, body := doJSON(t, app, "POST", "/api/chat/stream", `{"message":""}`)
	assert.Equal(t, 400, code)
	assert.Equal(t, "INVALID_INPUT", body["error_type"])
}

// blockingChatService streams one fragment and then holds the turn until
// the stream context ends.
type blockingChatService struct {
	stubChatService
	done chan error
}

func (s *blockingChatService) StreamChat(ctx context.Context, req *dto.ChatRequest) (<-chan dto.StreamEvent, error) {
	ch := make(chan dto.StreamEvent, 1)
	ch <- dto.StreamEvent{Message: "partial", ConversationId: "c-1"}
	go func() {
		defer close(ch)
		<-ctx.Done()
		s.done <- ctx.Err()
	}()
	return ch, nil
}

func TestChatController_GuardStream(t *testing.T) {
	newController := func(timeout time.Duration) *chatController {
		c := NewChatController(&stubChatService{}, logger.NewNopLogger()).(*chatController)
		c.streamStartTimeout = timeout
		return c
	}

	tests := []struct {
		name       string
		timeout    time.Duration
		start      bool
		shutdown   bool
		wantCancel bool
	}{
		{name: "writer never starts", timeout: 20 * time.Millisecond, wantCancel: true},
		{name: "writer started in time", timeout: 20 * time.Millisecond, start: true},
		{name: "shutdown cancels a running stream", timeout: time.Minute, start: true, shutdown: true, wantCancel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(tt.timeout)
			ctx, started, cancel := c.guardStream(context.Background())
			defer cancel()

			if tt.start {
				started()
			}
			if tt.shutdown {
				c.Shutdown()
			}

			select {
			case <-ctx.Done():
				assert.True(t, tt.wantCancel, "stream cancelled unexpectedly")
				assert.ErrorIs(t, ctx.Err(), context.Canceled)
			case <-time.After(200 * time.Millisecond):
				assert.False(t, tt.wantCancel, "stream was never cancelled")
			}
		})
	}
}

func TestChatController_ShutdownEndsActiveStream(t *testing.T) {
	svc := &blockingChatService{done: make(chan error, 1)}
	ctrl := NewChatController(svc, logger.NewNopLogger())
	app := newTestApp(ctrl.RegisterRoutes)

	time.AfterFunc(50*time.Millisecond, ctrl.Shutdown)

	req := httptest.NewRequest("POST", "/api/chat/stream", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, int((5 * time.Second).Milliseconds()))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `data: {"message":"partial","conversationId":"c-1"}`, strings.TrimSpace(string(raw)))

	select {
	case err := <-svc.done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("stream context was not cancelled")
	}
}

type stubIngestionService struct {
	dir string
}

func (s *stubIngestionService) Ingest(ctx context.Context, dir string) (*service.BatchHandle, error) {
	s.dir = dir
	if dir == "/missing" {
		return nil, apperror.InvalidInput("Path does not exist: " + dir)
	}
	return &service.BatchHandle{BatchId: "b-1"}, nil
}

func (s *stubIngestionService) ListIngestedFiles(ctx context.Context) ([]*dto.IngestedFileResponse, error) {
	return []*dto.IngestedFileResponse{{ChunkId: "x", FileName: "a.txt"}, {ChunkId: "y", FileName: "a.txt"}}, nil
}

func (s *stubIngestionService) GetBatch(ctx context.Context, id string) (*dto.BatchStatusResponse, error) {
	if id != "b-1" {
		return nil, apperror.BatchNotFound(id)
	}
	return &dto.BatchStatusResponse{BatchId: id, Status: "RUNNING"}, nil
}

func (s *stubIngestionService) CancelBatch(ctx context.Context, id string) (*dto.BatchStatusResponse, error) {
	return s.GetBatch(ctx, id)
}

func TestIngestionController_Routes(t *testing.T) {
	stub := &stubIngestionService{}
	app := newTestApp(NewIngestionController(stub).RegisterRoutes)

	code, body := doJSON(t, app, "POST", "/api/ingestion?filePath=/data/docs", "")
	assert.Equal(t, 202, code)
	assert.Equal(t, "/data/docs", stub.dir)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "b-1", data["batchId"])
	assert.Equal(t, "PENDING", data["status"])

	code, body = doJSON(t, app, "POST", "/api/ingestion", "")
	assert.Equal(t, 400, code)
	assert.Equal(t, "INVALID_INPUT", body["error_type"])

	code, _ = doJSON(t, app, "POST", "/api/ingestion?filePath=/missing", "")
	assert.Equal(t, 400, code)

	code, body = doJSON(t, app, "GET", "/api/ingestion", "")
	assert.Equal(t, 200, code)
	assert.Len(t, body["data"], 2)

	code, _ = doJSON(t, app, "GET", "/api/ingestion/b-1", "")
	assert.Equal(t, 200, code)

	code, body = doJSON(t, app, "DELETE", "/api/ingestion/nope", "")
	assert.Equal(t, 404, code)
	assert.Equal(t, "BATCH_NOT_FOUND", body["error_type"])
}

func TestHealthController(t *testing.T) {
	tests := []struct {
		name     string
		checks   map[string]HealthCheck
		wantCode int
		want     string
	}{
		{name: "no checks", checks: nil, wantCode: 200, want: "UP"},
		{
			name: "all up",
			checks: map[string]HealthCheck{
				"database": func(ctx context.Context) error { return nil },
			},
			wantCode: 200,
			want:     "UP",
		},
		{
			name: "one down",
			checks: map[string]HealthCheck{
				"database": func(ctx context.Context) error { return nil },
				"redis":    func(ctx context.Context) error { return errors.New("refused") },
			},
			wantCode: 503,
			want:     "DOWN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(NewHealthController(tt.checks).RegisterRoutes)
			code, body := doJSON(t, app, "GET", "/api/health", "")
			assert.Equal(t, tt.wantCode, code)
			data := body["data"].(map[string]interface{})
			assert.Equal(t, tt.want, data["status"])
		})
	}
}
