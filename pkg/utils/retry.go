package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// StatusError carries a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// DoWithRetry sends the request built by newReq, retrying transport errors and
// 5xx/429 responses with exponential backoff. Other 4xx responses fail at once.
// maxTries counts the first attempt. The caller owns the returned body.
func DoWithRetry(ctx context.Context, client *http.Client, maxTries int, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if maxTries < 1 {
		maxTries = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	op := func() (*http.Response, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxTries)),
	)
}
