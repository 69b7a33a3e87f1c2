package memory

import (
	"sort"
	"sync"

	"llamatalks-be/internal/entity"
)

// Store is the process-local backing for every in-memory repository. It is
// used when no database is configured and by service tests.
type Store struct {
	mu sync.RWMutex

	nextConversationId uint64
	nextMessageId      uint64

	conversations map[uint64]*entity.Conversation
	byKey         map[string]uint64
	messages      map[uint64][]*entity.Message
	chunks        []*entity.EmbeddedChunk
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[uint64]*entity.Conversation),
		byKey:         make(map[string]uint64),
		messages:      make(map[uint64][]*entity.Message),
	}
}

func copyConversation(c *entity.Conversation) *entity.Conversation {
	cp := *c
	cp.Messages = nil
	return &cp
}

func copyMessage(m *entity.Message) *entity.Message {
	cp := *m
	if m.Context != nil {
		ctx := *m.Context
		cp.Context = &ctx
	}
	return &cp
}

func copyChunk(c *entity.EmbeddedChunk) *entity.EmbeddedChunk {
	cp := *c
	cp.Embedding = append([]float32(nil), c.Embedding...)
	cp.Metadata = make(map[string]interface{}, len(c.Metadata))
	for k, v := range c.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// messagesOf must be called with mu held.
func (s *Store) messagesOf(rowId uint64) []*entity.Message {
	src := s.messages[rowId]
	out := make([]*entity.Message, len(src))
	for i, m := range src {
		out[i] = copyMessage(m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GeneratedAt.Equal(out[j].GeneratedAt) {
			return out[i].Id < out[j].Id
		}
		return out[i].GeneratedAt.Before(out[j].GeneratedAt)
	})
	return out
}
