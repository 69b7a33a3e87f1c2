package dto

import "time"

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationId string `json:"conversationId,omitempty"`
}

type ChatResponse struct {
	Message        string `json:"message"`
	ConversationId string `json:"conversationId"`
}

// StreamEvent is one item of a streamed reply. Exactly one of Message or Err
// is meaningful; an event with Err set is always the last one.
type StreamEvent struct {
	Message        string
	ConversationId string
	Err            error
}

type ChangeTitleRequest struct {
	Title string `json:"title"`
}

type ConversationSummary struct {
	ConversationId string    `json:"conversationId"`
	Title          string    `json:"title"`
	StartedAt      time.Time `json:"startedAt"`
}

type MessageResponse struct {
	Content     string    `json:"content"`
	Role        string    `json:"role"`
	Context     *string   `json:"context,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

type ConversationDetail struct {
	ConversationId string             `json:"conversationId"`
	Title          string             `json:"title"`
	StartedAt      time.Time          `json:"startedAt"`
	Messages       []*MessageResponse `json:"messages"`
}

// WebSocket frames

type StreamFrame struct {
	Message        string `json:"message,omitempty"`
	ConversationId string `json:"conversationId,omitempty"`
	Done           bool   `json:"done,omitempty"`
	Error          any    `json:"error,omitempty"`
}
