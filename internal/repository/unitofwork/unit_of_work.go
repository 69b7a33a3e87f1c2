package unitofwork

import (
	"context"

	"llamatalks-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ConversationRepository() contract.ConversationRepository
	MessageRepository() contract.MessageRepository
	EmbeddingRepository() contract.EmbeddingRepository
}
