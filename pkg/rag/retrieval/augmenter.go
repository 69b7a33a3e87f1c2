package retrieval

import (
	"context"
	"strings"

	"llamatalks-be/internal/pkg/apperror"
	"llamatalks-be/internal/repository/contract"
	"llamatalks-be/pkg/embedding"
	"llamatalks-be/pkg/llm"
)

const (
	ContextPrompt    = "Use the following context to answer the user's question:\n\n"
	ContextSeparator = "\n\n"
)

type Augmenter struct {
	embedder   embedding.EmbeddingProvider
	store      contract.EmbeddingRepository
	maxResults int
	minScore   float64
}

func NewAugmenter(embedder embedding.EmbeddingProvider, store contract.EmbeddingRepository, maxResults int, minScore float64) *Augmenter {
	return &Augmenter{
		embedder:   embedder,
		store:      store,
		maxResults: maxResults,
		minScore:   minScore,
	}
}

// Retrieve returns the texts of the best matching chunks joined in score
// order, or "" when nothing scores at least minScore.
func (a *Augmenter) Retrieve(ctx context.Context, query string) (string, error) {
	vector, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return "", apperror.Retrieval("Failed to embed query", err)
	}

	matches, err := a.store.SearchSimilarWithScore(ctx, vector, a.maxResults, a.minScore)
	if err != nil {
		return "", apperror.Retrieval("Vector search failed", err)
	}
	if len(matches) == 0 {
		return "", nil
	}

	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Chunk.Text
	}
	return strings.Join(texts, ContextSeparator), nil
}

// SystemMessage wraps retrieved context into the instruction sent ahead of the history.
func SystemMessage(context string) llm.Message {
	return llm.Message{Role: llm.RoleSystem, Content: ContextPrompt + context}
}
