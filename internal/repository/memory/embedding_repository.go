package memory

import (
	"context"
	"math"
	"sort"

	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/repository/contract"

	"github.com/google/uuid"
)

type EmbeddingRepository struct {
	store *Store
}

func NewEmbeddingRepository(store *Store) contract.EmbeddingRepository {
	return &EmbeddingRepository{store: store}
}

func (r *EmbeddingRepository) Create(ctx context.Context, chunk *entity.EmbeddedChunk) error {
	return r.CreateBulk(ctx, []*entity.EmbeddedChunk{chunk})
}

func (r *EmbeddingRepository) CreateBulk(ctx context.Context, chunks []*entity.EmbeddedChunk) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, c := range chunks {
		if c.Id == uuid.Nil {
			c.Id = uuid.New()
		}
		r.store.chunks = append(r.store.chunks, copyChunk(c))
	}
	return nil
}

func (r *EmbeddingRepository) SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, minScore float64) ([]*entity.ScoredChunk, error) {
	if limit <= 0 {
		return []*entity.ScoredChunk{}, nil
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	scored := make([]*entity.ScoredChunk, 0)
	for _, c := range r.store.chunks {
		score := RelevanceScore(CosineSimilarity(embedding, c.Embedding))
		if score < minScore {
			continue
		}
		scored = append(scored, &entity.ScoredChunk{Chunk: copyChunk(c), Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (r *EmbeddingRepository) FindAllFileNames(ctx context.Context) ([]*entity.FileNameRow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rows := make([]*entity.FileNameRow, 0, len(r.store.chunks))
	for _, c := range r.store.chunks {
		if name := c.FileName(); name != "" {
			rows = append(rows, &entity.FileNameRow{ChunkId: c.Id, FileName: name})
		}
	}
	return rows, nil
}

func (r *EmbeddingRepository) FindDistinctFileNames(ctx context.Context) ([]string, error) {
	rows, err := r.FindAllFileNames(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rows))
	names := make([]string, 0)
	for _, row := range rows {
		if _, ok := seen[row.FileName]; ok {
			continue
		}
		seen[row.FileName] = struct{}{}
		names = append(names, row.FileName)
	}
	sort.Strings(names)
	return names, nil
}

func (r *EmbeddingRepository) ExistsByFileName(ctx context.Context, fileName string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, c := range r.store.chunks {
		if c.FileName() == fileName {
			return true, nil
		}
	}
	return false, nil
}

// RelevanceScore maps cosine similarity from [-1, 1] onto [0, 1], the scale
// minScore is expressed in. It matches the pgvector query's (2 - distance) / 2.
func RelevanceScore(cosine float64) float64 {
	return (cosine + 1) / 2
}

// CosineSimilarity returns 0 for mismatched or zero-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
