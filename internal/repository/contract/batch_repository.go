package contract

import (
	"context"

	"llamatalks-be/internal/entity"
)

// BatchRepository keeps ingestion batch status outside the relational store.
type BatchRepository interface {
	Save(ctx context.Context, batch *entity.IngestionBatch) error
	FindById(ctx context.Context, batchId string) (*entity.IngestionBatch, error)
}
