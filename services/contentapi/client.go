package contentapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"streamfinder/config"
	"streamfinder/metrics"
	"streamfinder/models"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of a response body is read into memory.
const maxBodyBytes = 8 << 20

// Client talks to the content backend (search, trending, platforms).
type Client struct {
	baseURL    *url.URL
	httpc      *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	attempts   uint
	retryDelay time.Duration
}

// New builds a client from the upstream settings. A nil httpc gets a client with
// the configured timeout.
func New(cfg config.UpstreamSettings, httpc *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream base url %q must be absolute", cfg.BaseURL)
	}
	if httpc == nil {
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpc = &http.Client{Timeout: timeout}
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:    base,
		httpc:      httpc,
		limiter:    rate.NewLimiter(limit, burst),
		breaker:    newBreaker("content-api", cfg),
		attempts:   uint(attempts),
		retryDelay: time.Duration(cfg.RetryDelayMillis) * time.Millisecond,
	}, nil
}

// Search fetches one page of search results.
func (c *Client) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	var out models.SearchResponse
	if err := c.doGET(ctx, "search", []string{"api", "search"}, req.Values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trending fetches the landing page rows. contentType is all, movie or tv.
func (c *Client) Trending(ctx context.Context, contentType string) (*models.TrendingResponse, error) {
	if contentType == "" {
		contentType = "all"
	}
	params := url.Values{}
	params.Set("content_type", contentType)

	var out models.TrendingResponse
	if err := c.doGET(ctx, "trending", []string{"api", "trending"}, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Platforms fetches the platform directory.
func (c *Client) Platforms(ctx context.Context) (*models.PlatformDirectory, error) {
	var out models.PlatformDirectory
	if err := c.doGET(ctx, "platforms", []string{"api", "platforms"}, nil, &out); err != nil {
		return nil, err
	}
	if out.Platforms == nil {
		out.Platforms = map[string]models.Platform{}
	}
	return &out, nil
}

// PlatformContent fetches the catalogue of a single platform. Unknown keys
// produce an error matching ErrNotFound.
func (c *Client) PlatformContent(ctx context.Context, key string, contentType models.ContentType, page int) (*models.SearchResponse, error) {
	if page < 1 {
		page = 1
	}
	if contentType == "" {
		contentType = models.ContentTypeMulti
	}
	params := url.Values{}
	params.Set("content_type", string(contentType))
	params.Set("page", strconv.Itoa(page))

	var out models.SearchResponse
	if err := c.doGET(ctx, "platform_content", []string{"api", "platforms", key}, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CastSupport fetches the casting capability summary.
func (c *Client) CastSupport(ctx context.Context) (*models.CastSupportSummary, error) {
	var out models.CastSupportSummary
	if err := c.doGET(ctx, "cast_support", []string{"api", "cast-support"}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches the backend health payload.
func (c *Client) Health(ctx context.Context) (*models.UpstreamHealth, error) {
	var out models.UpstreamHealth
	if err := c.doGET(ctx, "health", []string{"api", "health"}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doGET performs a GET through the rate limiter, retry budget and circuit breaker
// and decodes the JSON body into v.
func (c *Client) doGET(ctx context.Context, endpoint string, segments []string, params url.Values, v any) error {
	target := c.baseURL.JoinPath(segments...)
	if len(params) > 0 {
		target.RawQuery = params.Encode()
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.getWithRetry(ctx, endpoint, target.String())
	})
	metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.UpstreamRequests.WithLabelValues(endpoint, "rejected").Inc()
			log.Printf("[contentapi] %s rejected: %v", endpoint, err)
			return fmt.Errorf("content api %s: %w", endpoint, err)
		}
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	metrics.UpstreamRequests.WithLabelValues(endpoint, "success").Inc()
	return nil
}

func (c *Client) getWithRetry(ctx context.Context, endpoint, target string) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpc.Do(req)
			if err != nil {
				metrics.UpstreamRequests.WithLabelValues(endpoint, "transport_error").Inc()
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
				metrics.UpstreamRequests.WithLabelValues(endpoint, "http_error").Inc()
				return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Status: resp.Status}
			}

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return err
			}
			body = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			var se *StatusError
			if errors.As(err, &se) {
				return se.Retryable()
			}
			return true
		}),
		retry.OnRetry(func(n uint, err error) {
			metrics.UpstreamRetries.WithLabelValues(endpoint).Inc()
			log.Printf("[contentapi] %s attempt %d/%d failed: %v", endpoint, n+1, c.attempts, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}
