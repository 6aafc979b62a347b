package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/observability"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// HTTPClient performs throttled, retried requests for API sources.
type HTTPClient struct {
	config     *HTTPConfig
	logger     *zap.Logger
	httpClient *http.Client
	transport  *http.Transport
	limiter    *IntervalRateLimiter
	retry      *RetryPolicy

	totalRequests  int64
	failedRequests int64
	retriedCalls   int64
}

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Timeout bounds each attempt, including reading the body
	Timeout time.Duration `json:"timeout"`

	// RateLimit is the requests-per-second ceiling; 0 disables throttling
	RateLimit float64 `json:"rate_limit"`

	// Retries is the number of extra attempts for transient failures
	Retries    int           `json:"retries"`
	RetryDelay time.Duration `json:"retry_delay"`

	// Connection settings
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `json:"tls_handshake_timeout"`
	EnableHTTP2         bool          `json:"enable_http2"`

	UserAgent string        `json:"user_agent"`
	OAuth2    *OAuth2Config `json:"oauth2,omitempty"`
}

// DefaultHTTPConfig returns the defaults used by API sources.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Timeout:             30 * time.Second,
		RetryDelay:          500 * time.Millisecond,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		EnableHTTP2:         true,
		UserAgent:           "pipeflow/1.0",
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewHTTPClient creates an HTTP client. A nil config uses DefaultHTTPConfig.
func NewHTTPClient(ctx context.Context, config *HTTPConfig, logger *zap.Logger) (*HTTPClient, error) {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &HTTPClient{
		config:  config,
		logger:  logger.With(zap.String("component", "http_client")),
		limiter: NewRateLimiter(config.RateLimit),
		retry:   NewRetryPolicy(config.Retries, config.RetryDelay),
	}

	client.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(client.transport); err != nil {
			client.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	client.httpClient = &http.Client{
		Transport: client.transport,
		Timeout:   config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	if config.OAuth2 != nil {
		authed, err := wrapOAuth2(ctx, config.OAuth2, client.httpClient, client.logger)
		if err != nil {
			return nil, err
		}
		client.httpClient = authed
	}

	return client, nil
}

// Get performs a GET request. See Do.
func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, headers)
}

// Do sends a bodiless request and reads the whole response. Each attempt waits
// on the rate limiter first. Transport errors, 429 and 5xx responses are
// retried; other non-2xx responses fail immediately.
func (c *HTTPClient) Do(ctx context.Context, method, url string, headers map[string]string) (*Response, error) {
	var resp *Response
	err := c.retry.Execute(ctx, func(attempt int) error {
		if attempt > 0 {
			atomic.AddInt64(&c.retriedCalls, 1)
			c.logger.Debug("retrying request",
				zap.String("url", url),
				zap.Int("attempt", attempt+1))
		}
		r, err := c.once(ctx, method, url, headers)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) once(ctx context.Context, method, url string, headers map[string]string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCanceled, "waiting for rate limiter")
		}
		// the next slot falls after the context deadline
		return nil, errors.Wrap(err, errors.ErrorTypeRateLimit, "waiting for rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "build request for %s", url)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	observability.InjectHeaders(ctx, req.Header)

	atomic.AddInt64(&c.totalRequests, 1)
	start := time.Now()

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err, url)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, err, url)
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("latency", time.Since(start)),
		zap.Int("bytes", len(body)))

	if err := statusError(httpResp.StatusCode, body); err != nil {
		return nil, err.WithDetail("url", url)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func classifyTransportError(ctx context.Context, err error, url string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, errors.ErrorTypeCanceled, "request canceled")
	}
	if oauth2Failure(err) {
		return errors.Wrap(err, errors.ErrorTypeAuthentication, "fetch oauth2 token")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(err, errors.ErrorTypeTimeout, "request to %s timed out", url)
	}
	return errors.Wrapf(err, errors.ErrorTypeConnection, "request to %s failed", url)
}

func statusError(code int, body []byte) *errors.Error {
	if code >= 200 && code < 300 {
		return nil
	}

	snippet := string(body)
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}

	var errType errors.ErrorType
	switch {
	case code == http.StatusTooManyRequests:
		errType = errors.ErrorTypeRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		errType = errors.ErrorTypeAuthentication
	case code >= 500:
		errType = errors.ErrorTypeConnection
	default:
		errType = errors.ErrorTypeExtraction
	}

	return errors.Newf(errType, "unexpected status %d", code).
		WithDetail("status", code).
		WithDetail("body", snippet)
}

// GetStats returns current client statistics
func (c *HTTPClient) GetStats() HTTPStats {
	return HTTPStats{
		TotalRequests:  atomic.LoadInt64(&c.totalRequests),
		FailedRequests: atomic.LoadInt64(&c.failedRequests),
		RetriedCalls:   atomic.LoadInt64(&c.retriedCalls),
		RateLimiter:    c.limiter.GetStats(),
	}
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// HTTPStats represents HTTP client statistics
type HTTPStats struct {
	TotalRequests  int64            `json:"total_requests"`
	FailedRequests int64            `json:"failed_requests"`
	RetriedCalls   int64            `json:"retried_calls"`
	RateLimiter    RateLimiterStats `json:"rate_limiter"`
}
