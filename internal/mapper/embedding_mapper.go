package mapper

import (
	"encoding/json"

	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type EmbeddingMapper struct{}

func NewEmbeddingMapper() *EmbeddingMapper {
	return &EmbeddingMapper{}
}

func (m *EmbeddingMapper) ToEntity(e *model.Embedding) *entity.EmbeddedChunk {
	if e == nil {
		return nil
	}

	metadata := map[string]interface{}{}
	if len(e.Metadata) > 0 {
		// Malformed metadata maps to an empty set.
		_ = json.Unmarshal(e.Metadata, &metadata)
	}

	return &entity.EmbeddedChunk{
		Id:        e.EmbeddingId,
		Embedding: e.Embedding.Slice(),
		Text:      e.Text,
		Metadata:  metadata,
	}
}

func (m *EmbeddingMapper) ToModel(e *entity.EmbeddedChunk) (*model.Embedding, error) {
	if e == nil {
		return nil, nil
	}

	var metadata datatypes.JSON
	if e.Metadata != nil {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, err
		}
		metadata = datatypes.JSON(raw)
	}

	return &model.Embedding{
		EmbeddingId: e.Id,
		Embedding:   pgvector.NewVector(e.Embedding),
		Text:        e.Text,
		Metadata:    metadata,
	}, nil
}

func (m *EmbeddingMapper) ToModels(chunks []*entity.EmbeddedChunk) ([]*model.Embedding, error) {
	models := make([]*model.Embedding, len(chunks))
	for i, c := range chunks {
		mdl, err := m.ToModel(c)
		if err != nil {
			return nil, err
		}
		models[i] = mdl
	}
	return models, nil
}
