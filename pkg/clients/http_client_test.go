package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/pipeflow/pkg/errors"
)

func testConfig() *HTTPConfig {
	cfg := DefaultHTTPConfig()
	cfg.Timeout = 5 * time.Second
	cfg.RetryDelay = time.Millisecond
	cfg.EnableHTTP2 = false
	return cfg
}

func TestHTTPClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Link", `<http://example.com/next>; rel="next"`)
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	defer server.Close()

	client, err := NewHTTPClient(context.Background(), testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL, map[string]string{"X-Api-Key": "secret"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `[{"id":1}]`, string(resp.Body))
	assert.Contains(t, resp.Header.Get("Link"), "next")
	assert.Equal(t, int64(1), client.GetStats().TotalRequests)
}

func TestHTTPClient_Retries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		retries   int
		wantCalls int32
		wantErr   errors.ErrorType
	}{
		{name: "recovers after 503", statuses: []int{503, 200}, retries: 2, wantCalls: 2},
		{name: "recovers after 429", statuses: []int{429, 429, 200}, retries: 2, wantCalls: 3},
		{name: "gives up", statuses: []int{500, 500, 500}, retries: 2, wantCalls: 3, wantErr: errors.ErrorTypeConnection},
		{name: "no retry on 404", statuses: []int{404, 200}, retries: 3, wantCalls: 1, wantErr: errors.ErrorTypeExtraction},
		{name: "no retry on 401", statuses: []int{401, 200}, retries: 3, wantCalls: 1, wantErr: errors.ErrorTypeAuthentication},
		{name: "retries disabled", statuses: []int{503, 200}, retries: 0, wantCalls: 1, wantErr: errors.ErrorTypeConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.statuses[n-1])
				_, _ = w.Write([]byte(`{}`))
			}))
			defer server.Close()

			cfg := testConfig()
			cfg.Retries = tt.retries
			client, err := NewHTTPClient(context.Background(), cfg, zaptest.NewLogger(t))
			require.NoError(t, err)

			_, err = client.Get(context.Background(), server.URL, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, errors.GetType(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestHTTPClient_RateLimitSpacing(t *testing.T) {
	var stamps []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RateLimit = 20 // 50ms apart
	client, err := NewHTTPClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := client.Get(context.Background(), server.URL, nil)
		require.NoError(t, err)
	}

	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 40*time.Millisecond)
	}
}

func TestHTTPClient_RateLimitPastDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Retries = 0
	cfg.RateLimit = 0.5 // 2s apart
	client, err := NewHTTPClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err = client.Get(ctx, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Get(ctx, server.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit), "got %v", err)
	assert.NoError(t, ctx.Err())
}

func TestHTTPClient_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Retries = 5
	cfg.RetryDelay = time.Second
	client, err := NewHTTPClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Get(ctx, server.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCanceled))
}

func TestHTTPClient_OAuth2(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig()
	cfg.OAuth2 = &OAuth2Config{
		TokenURL:     server.URL + "/token",
		ClientID:     "id",
		ClientSecret: "secret",
	}
	client, err := NewHTTPClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := client.Get(context.Background(), server.URL+"/data", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestHTTPClient_OAuth2Invalid(t *testing.T) {
	cfg := testConfig()
	cfg.OAuth2 = &OAuth2Config{ClientID: "id"}
	_, err := NewHTTPClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfig, errors.GetType(err))
}
