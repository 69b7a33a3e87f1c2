package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"llamatalks-be/pkg/utils"
)

// TikaParser extracts plain text through an Apache Tika server (PUT /tika).
type TikaParser struct {
	serverURL  string
	maxRetries int
	client     *http.Client
}

func NewTikaParser(serverURL string, timeout time.Duration, maxRetries int) *TikaParser {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &TikaParser{
		serverURL:  serverURL,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: timeout},
	}
}

func (p *TikaParser) Parse(ctx context.Context, path string, data []byte) (string, error) {
	resp, err := utils.DoWithRetry(ctx, p.client, p.maxRetries, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.serverURL+"/tika", bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/plain")
		req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("tika parse %s: %w", filepath.Base(path), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read tika response: %w", err)
	}
	return string(body), nil
}
