package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/repository/contract"

	goredis "github.com/redis/go-redis/v9"
)

const (
	batchKeyPrefix = "llamatalks:batch:"
	batchTTL       = 24 * time.Hour
)

// BatchRepository shares batch status between instances through Redis.
type BatchRepository struct {
	rdb *goredis.Client
}

func NewBatchRepository(rdb *goredis.Client) contract.BatchRepository {
	return &BatchRepository{rdb: rdb}
}

func (r *BatchRepository) Save(ctx context.Context, batch *entity.IngestionBatch) error {
	raw, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, batchKeyPrefix+batch.BatchId, raw, batchTTL).Err()
}

func (r *BatchRepository) FindById(ctx context.Context, batchId string) (*entity.IngestionBatch, error) {
	raw, err := r.rdb.Get(ctx, batchKeyPrefix+batchId).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var batch entity.IngestionBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}
