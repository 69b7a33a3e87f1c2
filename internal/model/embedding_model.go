package model

import (
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Embedding mirrors the `embeddings` table. The vector column is created by
// cmd/migrate with the configured dimension, so the tag carries no size.
type Embedding struct {
	EmbeddingId uuid.UUID       `gorm:"column:embedding_id;type:uuid;primaryKey"`
	Embedding   pgvector.Vector `gorm:"column:embedding;type:vector"`
	Text        string          `gorm:"column:text;type:text"`
	Metadata    datatypes.JSON  `gorm:"column:metadata;type:jsonb"`
}

func (Embedding) TableName() string {
	return "embeddings"
}
