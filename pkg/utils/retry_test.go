package utils

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		failCode  int
		maxTries  int
		wantErr   bool
		wantCalls int32
		wantCode  int
	}{
		{name: "first try", failures: 0, maxTries: 3, wantCalls: 1},
		{name: "recovers after 5xx", failures: 2, failCode: http.StatusServiceUnavailable, maxTries: 3, wantCalls: 3},
		{name: "gives up", failures: 5, failCode: http.StatusInternalServerError, maxTries: 2, wantErr: true, wantCalls: 2, wantCode: 500},
		{name: "4xx is permanent", failures: 5, failCode: http.StatusBadRequest, maxTries: 3, wantErr: true, wantCalls: 1, wantCode: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				if n <= tt.failures {
					http.Error(w, "boom", tt.failCode)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			resp, err := DoWithRetry(context.Background(), srv.Client(), tt.maxTries, func(ctx context.Context) (*http.Request, error) {
				return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
			})

			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
			if tt.wantErr {
				require.Error(t, err)
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, tt.wantCode, statusErr.StatusCode)
				return
			}
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestDoWithRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := DoWithRetry(ctx, srv.Client(), 3, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	assert.Error(t, err)
}
