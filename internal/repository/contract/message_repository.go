package contract

import (
	"context"

	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/repository/specification"
)

type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	DeleteByConversationRowId(ctx context.Context, conversationRowId uint64) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error)
}
