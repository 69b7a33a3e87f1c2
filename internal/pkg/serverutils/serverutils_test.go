package serverutils

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"llamatalks-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildErrorBody(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantType string
		wantMsg  string
	}{
		{
			name:     "invalid input",
			err:      apperror.InvalidInput("Message cannot be empty"),
			wantCode: 400,
			wantType: "INVALID_INPUT",
			wantMsg:  "Message cannot be empty",
		},
		{
			name:     "not found",
			err:      apperror.ConversationNotFound("abc"),
			wantCode: 404,
			wantType: "CONVERSATION_NOT_FOUND",
			wantMsg:  "Conversation not found: abc",
		},
		{
			name:     "upstream hides cause",
			err:      apperror.UpstreamModel("Chat model call failed", errors.New("dial tcp 10.0.0.3:11434: refused")),
			wantCode: 502,
			wantType: "UPSTREAM_MODEL_ERROR",
			wantMsg:  "Chat model call failed",
		},
		{
			name:     "busy conversation",
			err:      apperror.ConversationBusy("abc", context.DeadlineExceeded),
			wantCode: 409,
			wantType: "CONVERSATION_BUSY",
			wantMsg:  "Conversation is busy with another turn: abc",
		},
		{
			name:     "fiber error",
			err:      fiber.ErrMethodNotAllowed,
			wantCode: 405,
			wantType: "HTTP_ERROR",
			wantMsg:  "Method Not Allowed",
		},
		{
			name:     "unknown error",
			err:      errors.New("pq: something internal"),
			wantCode: 500,
			wantType: "INTERNAL_ERROR",
			wantMsg:  "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := BuildErrorBody(tt.err)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantType, body.ErrorType)
			assert.Equal(t, tt.wantMsg, body.Message)
			assert.False(t, body.Success)
			assert.WithinDuration(t, time.Now(), body.Timestamp, time.Minute)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	type req struct {
		Message string `validate:"required,max=5"`
	}

	assert.NoError(t, ValidateRequest(req{Message: "hi"}))

	err := ValidateRequest(req{Message: ""})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Fields, 1)

	body := BuildErrorBody(err)
	assert.Equal(t, 400, body.Code)
	assert.Equal(t, "INVALID_INPUT", body.ErrorType)
}

func TestJwtMiddleware(t *testing.T) {
	secret := "test-secret"
	app := fiber.New()
	app.Use(JwtMiddleware(secret))
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "missing", want: 401},
		{name: "garbage", header: "Bearer nope", want: 401},
		{name: "valid header", header: "Bearer " + signed, want: 200},
		{name: "valid query", query: "?token=" + signed, want: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ping"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
