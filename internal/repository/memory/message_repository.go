package memory

import (
	"context"

	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/repository/contract"
	"llamatalks-be/internal/repository/specification"
)

type MessageRepository struct {
	store *Store
}

func NewMessageRepository(store *Store) contract.MessageRepository {
	return &MessageRepository{store: store}
}

func (r *MessageRepository) Create(ctx context.Context, message *entity.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.conversations[message.ConversationRowId]; !ok {
		return contract.ErrForeignKey
	}

	r.store.nextMessageId++
	message.Id = r.store.nextMessageId
	r.store.messages[message.ConversationRowId] = append(r.store.messages[message.ConversationRowId], copyMessage(message))
	return nil
}

func (r *MessageRepository) DeleteByConversationRowId(ctx context.Context, conversationRowId uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.messages, conversationRowId)
	return nil
}

// FindAll requires a ByConversationRowID specification; messages come back chronologically.
func (r *MessageRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, spec := range specs {
		if s, ok := spec.(specification.ByConversationRowID); ok {
			return r.store.messagesOf(s.RowID), nil
		}
	}
	return []*entity.Message{}, nil
}
