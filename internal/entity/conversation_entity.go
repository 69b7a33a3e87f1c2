package entity

import "time"

const (
	MaxTitleLength   = 63
	MaxContentLength = 5000
	MaxContextLength = 255
)

// Conversation is addressed by ConversationId; Id is the internal row id and never leaves the service.
type Conversation struct {
	Id             uint64
	ConversationId string
	Title          string
	StartedAt      time.Time
	Messages       []*Message
}
