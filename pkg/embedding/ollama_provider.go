package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"llamatalks-be/pkg/utils"
)

const defaultEmbedBatchSize = 32

// OllamaProvider implements EmbeddingProvider for local Ollama models (e.g., nomic-embed-text)
type OllamaProvider struct {
	BaseURL    string
	Model      string
	Dimension  int
	BatchSize  int
	MaxRetries int
	Client     *http.Client
}

func NewOllamaProvider(baseURL string, model string, dimension int, timeout time.Duration, maxRetries int) EmbeddingProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaProvider{
		BaseURL:    baseURL,
		Model:      model,
		Dimension:  dimension,
		BatchSize:  defaultEmbedBatchSize,
		MaxRetries: maxRetries,
		Client:     &http.Client{Timeout: timeout},
	}
}

// Ollama Embedding Request/Response structures
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (p *OllamaProvider) Dimensions() int {
	return p.Dimension
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedAll preserves input order. Inputs are sent in groups of BatchSize.
func (p *OllamaProvider) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (p *OllamaProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	jsonBody, err := json.Marshal(ollamaEmbedRequest{Model: p.Model, Input: texts})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/embed", p.BaseURL)
	resp, err := utils.DoWithRetry(ctx, p.Client, p.MaxRetries, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var ollamaResp ollamaEmbedResponse
	if err := json.Unmarshal(bodyBytes, &ollamaResp); err != nil {
		return nil, err
	}
	if len(ollamaResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(ollamaResp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, raw := range ollamaResp.Embeddings {
		if p.Dimension > 0 && len(raw) != p.Dimension {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(raw), p.Dimension)
		}
		values := make([]float32, len(raw))
		for j, v := range raw {
			values[j] = float32(v)
		}
		vectors[i] = normalizeVector(values)
	}
	return vectors, nil
}

// normalizeVector scales vec to unit length so pgvector cosine distance and
// dot product agree.
func normalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
