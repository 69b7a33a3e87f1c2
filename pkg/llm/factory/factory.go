package factory

import (
	"fmt"
	"time"

	"llamatalks-be/pkg/llm"
	"llamatalks-be/pkg/llm/ollama"
)

type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama", "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model, cfg.Timeout, cfg.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
