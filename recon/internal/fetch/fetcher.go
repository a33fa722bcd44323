// Package fetch implements the HTTP client shared by source adapters,
// the container analyzer, and the reverse-lookup sources.
//
// Responses are size-capped, transient failures are retried with
// exponential backoff, and requests are paced per host so third-party
// indexes are not hammered.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Sentinel failures shared by everything that talks to the network.
var (
	ErrUnavailable = errors.New("fetch: source unavailable")
	ErrAuthExpired = errors.New("fetch: authentication expired")
	ErrRateLimited = errors.New("fetch: rate limited")
	ErrNotFound    = errors.New("fetch: not found")
)

// Result contains the outcome of a fetch.
type Result struct {
	Body       []byte
	StatusCode int
	FinalURL   string // after redirects
}

// Config configures the fetcher.
type Config struct {
	Timeout     time.Duration // per-request timeout. Default: 30s.
	MaxBytes    int64         // max response body size. Default: 10MB.
	MaxAttempts int           // attempts for temporary failures. Default: 3.
	UserAgent   string
	PerHostRate rate.Limit    // requests per second per host. Default: 2.
	RetryBase   time.Duration // first backoff delay. Default: 1s.
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) crawlGTM/1.0"
	}
	if c.PerHostRate <= 0 {
		c.PerHostRate = 2
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Fetcher performs paced, retried HTTP GETs.
type Fetcher struct {
	client *http.Client
	config Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config:   cfg,
		limiters: map[string]*rate.Limiter{},
	}
}

// Get fetches a URL with optional extra headers.
//
// 404/410 map to ErrNotFound, 401/403 to ErrAuthExpired, 429 to
// ErrRateLimited. 5xx and transport errors are retried MaxAttempts
// times with exponential backoff, then wrapped in ErrUnavailable. The
// Result carries the status code whenever a response was received.
func (f *Fetcher) Get(ctx context.Context, rawURL string, headers map[string]string) (*Result, error) {
	if err := f.pace(ctx, rawURL); err != nil {
		return nil, err
	}

	var last error
	for attempt := 1; attempt <= f.config.MaxAttempts; attempt++ {
		res, err := f.once(ctx, rawURL, headers)
		if err == nil {
			return res, nil
		}
		last = err
		if !retryable(err) || ctx.Err() != nil {
			return res, err
		}
		f.config.Logger.Debug("fetch: retrying",
			"url", rawURL, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff(f.config.RetryBase, attempt)):
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w",
		ErrUnavailable, rawURL, f.config.MaxAttempts, last)
}

func (f *Fetcher) once(ctx context.Context, rawURL string, headers map[string]string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	res := &Result{StatusCode: resp.StatusCode, FinalURL: resp.Request.URL.String()}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return res, fmt.Errorf("%w: http %d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return res, fmt.Errorf("%w: http %d", ErrAuthExpired, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return res, fmt.Errorf("%w: http %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return res, fmt.Errorf("http %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 400:
		return res, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return res, fmt.Errorf("read body: %w", err)
	}
	res.Body = body
	return res, nil
}

// retryable reports whether an error is worth another attempt. Terminal
// classifications (not found, auth, rate limit) are returned as-is so
// callers can react instead of looping.
func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrRateLimited) {
		return false
	}
	return true
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if max := 10 * base; d > max {
		d = max
	}
	return d
}

func (f *Fetcher) pace(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	f.mu.Lock()
	lim, ok := f.limiters[u.Host]
	if !ok {
		lim = rate.NewLimiter(f.config.PerHostRate, 1)
		f.limiters[u.Host] = lim
	}
	f.mu.Unlock()
	return lim.Wait(ctx)
}
