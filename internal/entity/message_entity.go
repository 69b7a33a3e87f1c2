package entity

import "time"

type MessageRole string

const (
	MessageRoleUser MessageRole = "USER"
	MessageRoleAI   MessageRole = "AI"
)

const NoContext = "No context"

type Message struct {
	Id                uint64
	ConversationRowId uint64
	Content           string
	Role              MessageRole
	Context           *string // AI messages only
	GeneratedAt       time.Time
}
