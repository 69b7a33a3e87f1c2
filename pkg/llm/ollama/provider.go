package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"llamatalks-be/pkg/llm"
	"llamatalks-be/pkg/utils"
)

const maxStreamLine = 1 << 20

type OllamaProvider struct {
	BaseURL    string
	ModelName  string
	MaxRetries int
	Client     *http.Client
	// StreamClient has no overall deadline; only the response header wait is bounded.
	StreamClient *http.Client
}

// Ensure OllamaProvider implements LLMProvider
var _ llm.LLMProvider = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName string, timeout time.Duration, maxRetries int) *OllamaProvider {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &OllamaProvider{
		BaseURL:    baseURL,
		ModelName:  modelName,
		MaxRetries: maxRetries,
		Client: &http.Client{
			Timeout: timeout,
		},
		StreamClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: timeout,
			},
		},
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func (o *OllamaProvider) buildPayload(history []llm.Message, stream bool, opts []llm.Option) ([]byte, error) {
	options := &llm.Options{
		Temperature: 0.7,
	}
	for _, opt := range opts {
		opt(options)
	}

	ollamaMessages := make([]ollamaMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = llm.RoleAssistant
		}
		ollamaMessages[i] = ollamaMessage{
			Role:    role,
			Content: msg.Content,
		}
	}

	model := o.ModelName
	if options.Model != "" {
		model = options.Model
	}

	reqPayload := ollamaChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   stream,
		Options: &ollamaOptions{
			Temperature: options.Temperature,
		},
	}
	if options.MaxTokens > 0 {
		reqPayload.Options.NumPredict = options.MaxTokens
	}

	payloadBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return payloadBytes, nil
}

func (o *OllamaProvider) post(ctx context.Context, client *http.Client, payload []byte) (*http.Response, error) {
	url := o.BaseURL + "/api/chat"
	resp, err := utils.DoWithRetry(ctx, client, o.MaxRetries, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	return resp, nil
}

// --- Interface Implementation ---

func (o *OllamaProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	payload, err := o.buildPayload(history, false, opts)
	if err != nil {
		return "", err
	}

	resp, err := o.post(ctx, o.Client, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(bodyBytes, &ollamaResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if ollamaResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", ollamaResp.Error)
	}

	return ollamaResp.Message.Content, nil
}

// ChatStream retries only while opening the stream; once fragments flow, a
// failure ends the stream with an error.
func (o *OllamaProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (llm.ChatStream, error) {
	payload, err := o.buildPayload(history, true, opts)
	if err != nil {
		return nil, err
	}

	resp, err := o.post(ctx, o.StreamClient, payload)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	return &ollamaStream{body: resp.Body, scanner: scanner}, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return o.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// ollamaStream reads the NDJSON body of a streaming /api/chat call.
type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *ollamaStream) Recv() (string, bool, error) {
	if s.done {
		return "", true, nil
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", false, fmt.Errorf("unmarshal stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return "", false, fmt.Errorf("ollama error: %s", chunk.Error)
		}
		if chunk.Done {
			s.done = true
			return chunk.Message.Content, true, nil
		}
		return chunk.Message.Content, false, nil
	}

	if err := s.scanner.Err(); err != nil {
		return "", false, fmt.Errorf("read stream: %w", err)
	}
	return "", false, errors.New("ollama stream ended without done marker")
}

func (s *ollamaStream) Close() error {
	return s.body.Close()
}
