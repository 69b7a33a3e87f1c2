package contract

import (
	"context"

	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/repository/specification"
)

type ConversationRepository interface {
	// CreateIfAbsent inserts the conversation unless its ConversationId already
	// exists, then returns the stored row. Concurrent callers observe one row.
	CreateIfAbsent(ctx context.Context, conversation *entity.Conversation) (*entity.Conversation, error)
	UpdateTitle(ctx context.Context, id uint64, title string) error
	Delete(ctx context.Context, id uint64) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error)
}
