package implementation

import (
	"context"

	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/mapper"
	"llamatalks-be/internal/model"
	"llamatalks-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const embeddingInsertBatchSize = 100

type EmbeddingRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.EmbeddingMapper
}

func NewEmbeddingRepository(db *gorm.DB) contract.EmbeddingRepository {
	return &EmbeddingRepositoryImpl{
		db:     db,
		mapper: mapper.NewEmbeddingMapper(),
	}
}

func (r *EmbeddingRepositoryImpl) Create(ctx context.Context, chunk *entity.EmbeddedChunk) error {
	return r.CreateBulk(ctx, []*entity.EmbeddedChunk{chunk})
}

func (r *EmbeddingRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if c.Id == uuid.Nil {
			c.Id = uuid.New()
		}
	}

	models, err := r.mapper.ToModels(chunks)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).CreateInBatches(models, embeddingInsertBatchSize).Error
}

// SearchSimilarWithScore ranks by relevance. pgvector's <=> is cosine distance
// in [0, 2]; relevance (2 - distance) / 2 maps it onto [0, 1], so minScore 0.75
// admits chunks with cosine similarity >= 0.5.
func (r *EmbeddingRepositoryImpl) SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, minScore float64) ([]*entity.ScoredChunk, error) {
	if limit <= 0 {
		return []*entity.ScoredChunk{}, nil
	}

	type result struct {
		model.Embedding
		Relevance float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Table("embeddings").
		Select("embeddings.*, (2 - (embedding <=> ?)) / 2 as relevance", queryVector).
		Where("(2 - (embedding <=> ?)) / 2 >= ?", queryVector, minScore).
		Order("relevance DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*entity.ScoredChunk, len(results))
	for i := range results {
		scored[i] = &entity.ScoredChunk{
			Chunk: r.mapper.ToEntity(&results[i].Embedding),
			Score: results[i].Relevance,
		}
	}
	return scored, nil
}

func (r *EmbeddingRepositoryImpl) FindAllFileNames(ctx context.Context) ([]*entity.FileNameRow, error) {
	type row struct {
		EmbeddingId uuid.UUID
		FileName    string
	}
	var rows []row

	err := r.db.WithContext(ctx).
		Table("embeddings").
		Select("embedding_id, metadata->>'fileName' as file_name").
		Where("metadata->>'fileName' IS NOT NULL").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*entity.FileNameRow, len(rows))
	for i, rw := range rows {
		out[i] = &entity.FileNameRow{ChunkId: rw.EmbeddingId, FileName: rw.FileName}
	}
	return out, nil
}

func (r *EmbeddingRepositoryImpl) FindDistinctFileNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Raw("SELECT DISTINCT metadata->>'fileName' FROM embeddings WHERE metadata->>'fileName' IS NOT NULL ORDER BY 1").
		Scan(&names).Error
	return names, err
}

func (r *EmbeddingRepositoryImpl) ExistsByFileName(ctx context.Context, fileName string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("embeddings").
		Where("metadata->>'fileName' = ?", fileName).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}
