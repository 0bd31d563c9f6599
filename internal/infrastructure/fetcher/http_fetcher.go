package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"NewsBot/internal/domain"
	"NewsBot/internal/ports"
)

const (
	defaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes matches the largest sitemap the parser accepts.
	DefaultMaxBodyBytes = 50 * 1024 * 1024
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36 NewsBot/1.0"
)

// Options tunes an HTTPFetcher. Zero values select defaults.
type Options struct {
	Timeout   time.Duration
	Retry     RetryPolicy
	UserAgent string
	// RateLimit is the allowed requests per second per host; 0 disables it.
	RateLimit float64
	Burst     int
	// MaxBodyBytes caps a response body; larger bodies fail with body_too_large.
	MaxBodyBytes int64
	Sleeper      Sleeper
	Logger       *slog.Logger
}

// HTTPFetcher issues GET requests with a per-attempt timeout and bounded retries.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	policy    RetryPolicy
	userAgent string
	limiter   *hostLimiter
	maxBody   int64
	sleeper   Sleeper
	logger    *slog.Logger
}

var _ ports.Fetcher = (*HTTPFetcher)(nil)

// New wires an HTTP client; a nil client gets a fresh one without a global
// timeout since each attempt carries its own deadline.
func New(client *http.Client, opts Options) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Sleeper == nil {
		opts.Sleeper = timerSleeper{}
	}
	return &HTTPFetcher{
		client:    client,
		timeout:   opts.Timeout,
		policy:    opts.Retry.normalized(),
		userAgent: opts.UserAgent,
		limiter:   newHostLimiter(opts.RateLimit, opts.Burst),
		maxBody:   opts.MaxBodyBytes,
		sleeper:   opts.Sleeper,
		logger:    opts.Logger,
	}
}

// Fetch downloads rawURL, retrying timeouts, connection errors, 429 and 5xx.
// Failures are returned as *domain.Failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (domain.Page, error) {
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return domain.Page{}, &domain.Failure{
			Kind: domain.KindInvalidURL,
			URL:  rawURL,
			Err:  err,
		}
	}

	state := newRetryState(f.policy)
	for {
		attempt := state.begin()
		page, failure := f.attempt(ctx, target)
		if failure == nil {
			page.Attempts = attempt
			return page, nil
		}
		failure.Attempts = attempt

		delay, retry := state.next(failure)
		if !retry {
			failure.Exhausted = failure.Retryable
			return domain.Page{}, failure
		}

		f.debug("retrying fetch", "url", rawURL, "attempt", attempt, "delay", delay, "error", failure)
		if sleepErr := f.sleeper.Sleep(ctx, delay); sleepErr != nil {
			failure.Exhausted = true
			return domain.Page{}, failure
		}
	}
}

func (f *HTTPFetcher) attempt(ctx context.Context, target *url.URL) (domain.Page, *domain.Failure) {
	rawURL := target.String()

	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.limiter.Wait(attemptCtx, target.Host); err != nil {
		return domain.Page{}, classifyLimiter(rawURL, err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return domain.Page{}, &domain.Failure{Kind: domain.KindInvalidURL, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Page{}, classifyTransport(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.Page{}, classifyStatus(rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return domain.Page{}, classifyTransport(rawURL, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > f.maxBody {
		return domain.Page{}, &domain.Failure{
			Kind:       domain.KindBodyTooLarge,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("body exceeds %d bytes", f.maxBody),
		}
	}

	return domain.Page{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func classifyStatus(rawURL string, code int) *domain.Failure {
	retryable := code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	return &domain.Failure{
		Kind:       domain.KindHTTPStatus,
		URL:        rawURL,
		StatusCode: code,
		Retryable:  retryable,
		Err:        fmt.Errorf("unexpected status %d %s", code, http.StatusText(code)),
	}
}

func classifyTransport(rawURL string, err error) *domain.Failure {
	if errors.Is(err, context.Canceled) {
		return &domain.Failure{Kind: domain.KindConnectionError, URL: rawURL, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.Failure{Kind: domain.KindTimeout, URL: rawURL, Retryable: true, Err: err}
	}

	return &domain.Failure{Kind: domain.KindConnectionError, URL: rawURL, Retryable: true, Err: err}
}

// classifyLimiter maps a rate limiter wait error. Wait fails early when the
// next token would arrive after the attempt deadline; that is a timeout.
func classifyLimiter(rawURL string, err error) *domain.Failure {
	if errors.Is(err, context.Canceled) {
		return &domain.Failure{Kind: domain.KindConnectionError, URL: rawURL, Err: err}
	}
	return &domain.Failure{
		Kind:      domain.KindTimeout,
		URL:       rawURL,
		Retryable: true,
		Err:       fmt.Errorf("rate limit wait: %w", err),
	}
}

func (f *HTTPFetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
