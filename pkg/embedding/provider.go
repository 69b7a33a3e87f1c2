package embedding

import "context"

// EmbeddingProvider turns text into fixed-length vectors. Every vector it
// returns has length Dimensions().
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
