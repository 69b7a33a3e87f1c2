package contract

import (
	"context"

	"llamatalks-be/internal/entity"
)

type EmbeddingRepository interface {
	Create(ctx context.Context, chunk *entity.EmbeddedChunk) error
	CreateBulk(ctx context.Context, chunks []*entity.EmbeddedChunk) error
	// SearchSimilarWithScore returns at most limit chunks scoring >= minScore, best first.
	SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, minScore float64) ([]*entity.ScoredChunk, error)
	FindAllFileNames(ctx context.Context) ([]*entity.FileNameRow, error)
	FindDistinctFileNames(ctx context.Context) ([]string, error)
	ExistsByFileName(ctx context.Context, fileName string) (bool, error)
}
