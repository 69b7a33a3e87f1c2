package mapper

import (
	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/model"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

// Conversation Mappers

func (m *ConversationMapper) ConversationToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}

	var messages []*entity.Message
	if c.Messages != nil {
		messages = m.MessagesToEntities(c.Messages)
	}

	return &entity.Conversation{
		Id:             c.Id,
		ConversationId: c.ConversationId,
		Title:          c.Title,
		StartedAt:      c.StartedAt,
		Messages:       messages,
	}
}

// ConversationToModel leaves Messages out; they are written through MessageRepository.
func (m *ConversationMapper) ConversationToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}

	return &model.Conversation{
		Id:             c.Id,
		ConversationId: c.ConversationId,
		Title:          c.Title,
		StartedAt:      c.StartedAt,
	}
}

// Message Mappers

func (m *ConversationMapper) MessageToEntity(msg *model.Message) *entity.Message {
	if msg == nil {
		return nil
	}

	return &entity.Message{
		Id:                msg.Id,
		ConversationRowId: msg.ConversationRowId,
		Content:           msg.Content,
		Role:              entity.MessageRole(msg.Role),
		Context:           msg.Context,
		GeneratedAt:       msg.GeneratedAt,
	}
}

func (m *ConversationMapper) MessageToModel(msg *entity.Message) *model.Message {
	if msg == nil {
		return nil
	}

	return &model.Message{
		Id:                msg.Id,
		ConversationRowId: msg.ConversationRowId,
		Content:           msg.Content,
		Role:              string(msg.Role),
		Context:           msg.Context,
		GeneratedAt:       msg.GeneratedAt,
	}
}

func (m *ConversationMapper) MessagesToEntities(msgs []*model.Message) []*entity.Message {
	entities := make([]*entity.Message, len(msgs))
	for i, msg := range msgs {
		entities[i] = m.MessageToEntity(msg)
	}
	return entities
}
