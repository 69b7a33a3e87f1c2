package memory

import (
	"context"
	"time"

	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

type BatchRepository struct {
	cache *cache.Cache
}

func NewBatchRepository() contract.BatchRepository {
	// Batches are kept for a day after their last update and purged hourly
	c := cache.New(24*time.Hour, time.Hour)
	return &BatchRepository{
		cache: c,
	}
}

func (r *BatchRepository) Save(ctx context.Context, batch *entity.IngestionBatch) error {
	r.cache.Set(batch.BatchId, cloneBatch(batch), cache.DefaultExpiration)
	return nil
}

func (r *BatchRepository) FindById(ctx context.Context, batchId string) (*entity.IngestionBatch, error) {
	if x, found := r.cache.Get(batchId); found {
		return cloneBatch(x.(*entity.IngestionBatch)), nil
	}
	return nil, nil
}

func cloneBatch(b *entity.IngestionBatch) *entity.IngestionBatch {
	cp := *b
	cp.FilesIngested = append([]string(nil), b.FilesIngested...)
	cp.FilesSkipped = append([]string(nil), b.FilesSkipped...)
	cp.FilesFailed = append([]string(nil), b.FilesFailed...)
	if b.FinishedAt != nil {
		t := *b.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
