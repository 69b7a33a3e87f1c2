package memory

import (
	"context"
	"sort"

	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/repository/contract"
	"llamatalks-be/internal/repository/specification"
)

type ConversationRepository struct {
	store *Store
}

func NewConversationRepository(store *Store) contract.ConversationRepository {
	return &ConversationRepository{store: store}
}

type conversationQuery struct {
	id             *uint64
	conversationId *string
	withMessages   bool
	order          *specification.OrderBy
	page           *specification.Pagination
}

// Only the specifications the services issue are understood; anything else is ignored.
func parseConversationSpecs(specs []specification.Specification) conversationQuery {
	var q conversationQuery
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			id := s.ID
			q.id = &id
		case specification.ByConversationID:
			cid := s.ConversationID
			q.conversationId = &cid
		case specification.WithMessages:
			q.withMessages = true
		case specification.OrderBy:
			o := s
			q.order = &o
		case specification.Pagination:
			p := s
			q.page = &p
		}
	}
	return q
}

func (q conversationQuery) matches(c *entity.Conversation) bool {
	if q.id != nil && c.Id != *q.id {
		return false
	}
	if q.conversationId != nil && c.ConversationId != *q.conversationId {
		return false
	}
	return true
}

func (r *ConversationRepository) CreateIfAbsent(ctx context.Context, conversation *entity.Conversation) (*entity.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if id, ok := r.store.byKey[conversation.ConversationId]; ok {
		return copyConversation(r.store.conversations[id]), nil
	}

	r.store.nextConversationId++
	stored := copyConversation(conversation)
	stored.Id = r.store.nextConversationId
	r.store.conversations[stored.Id] = stored
	r.store.byKey[stored.ConversationId] = stored.Id
	return copyConversation(stored), nil
}

func (r *ConversationRepository) UpdateTitle(ctx context.Context, id uint64, title string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if c, ok := r.store.conversations[id]; ok {
		c.Title = title
	}
	return nil
}

func (r *ConversationRepository) Delete(ctx context.Context, id uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if c, ok := r.store.conversations[id]; ok {
		delete(r.store.byKey, c.ConversationId)
		delete(r.store.conversations, id)
		delete(r.store.messages, id)
	}
	return nil
}

func (r *ConversationRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *ConversationRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error) {
	q := parseConversationSpecs(specs)

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*entity.Conversation, 0, len(r.store.conversations))
	for _, c := range r.store.conversations {
		if !q.matches(c) {
			continue
		}
		cp := copyConversation(c)
		if q.withMessages {
			cp.Messages = r.store.messagesOf(c.Id)
		}
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if q.order != nil && q.order.Field == "started_at" && !out[i].StartedAt.Equal(out[j].StartedAt) {
			if q.order.Desc {
				return out[i].StartedAt.After(out[j].StartedAt)
			}
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		if q.order != nil && q.order.Desc {
			return out[i].Id > out[j].Id
		}
		return out[i].Id < out[j].Id
	})

	if q.page != nil {
		if q.page.Offset >= len(out) {
			return []*entity.Conversation{}, nil
		}
		out = out[q.page.Offset:]
		if q.page.Limit > 0 && q.page.Limit < len(out) {
			out = out[:q.page.Limit]
		}
	}
	return out, nil
}
