package quoteapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/guttosm/stockpulse/internal/logger"
)

const (
	// DefaultBaseURL is the Alpha Vantage API root.
	DefaultBaseURL = "https://www.alphavantage.co"

	userAgent    = "stockpulse/1.0"
	maxBodyBytes = 1 << 20
	probeSymbol  = "IBM"
	probeKey     = "demo"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=quoteapi_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches GLOBAL_QUOTE payloads, retrying transient failures.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  HTTPClient
	header      http.Header
	maxAttempts int
	newBackOff  func() backoff.BackOff

	// pacing between consecutive requests
	minInterval time.Duration
	mu          sync.Mutex
	last        time.Time
}

// Option is a configuration option for the Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithTimeout sets the per-attempt timeout. It only applies to the default *http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if hc, ok := c.httpClient.(*http.Client); ok && d > 0 {
			hc.Timeout = d
		}
	}
}

// WithMaxAttempts sets the total number of attempts per symbol (minimum 1).
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.maxAttempts = n
	}
}

// WithRetryDelay sets the first retry delay; later delays double.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.newBackOff = func() backoff.BackOff { return exponential(d) }
	}
}

// WithBackOff replaces the delay policy. Tests use backoff.ZeroBackOff.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = fn
	}
}

// WithMinInterval enforces a minimum gap between consecutive requests.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		c.minInterval = d
	}
}

// NewClient creates a new quote API client.
func NewClient(apiKey string, options ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		header:      http.Header{},
		maxAttempts: 3,
		newBackOff:  func() backoff.BackOff { return exponential(5 * time.Second) },
	}
	c.header.Set("User-Agent", userAgent)
	c.header.Set("Accept", "application/json")
	for _, option := range options {
		option(c)
	}
	return c
}

func exponential(initial time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 5 * time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// rateAwareBackOff doubles the next delay when the last failure was a rate limit.
type rateAwareBackOff struct {
	backoff.BackOff
	rateLimited bool
}

func (b *rateAwareBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d != backoff.Stop && b.rateLimited {
		d *= 2
	}
	return d
}

// Fetch returns the raw GLOBAL_QUOTE body for symbol.
//
// Failures come back as *FetchError wrapping ErrRateLimited, ErrTransient,
// ErrProvider or the context error.
func (c *Client) Fetch(ctx context.Context, symbol string) ([]byte, error) {
	log := logger.With("quoteapi")

	var (
		body     []byte
		attempts int
	)
	bo := &rateAwareBackOff{BackOff: c.newBackOff()}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx)

	op := func() error {
		attempts++
		b, err := c.attempt(ctx, symbol)
		if err != nil {
			bo.rateLimited = errors.Is(err, ErrRateLimited)
			return err
		}
		body = b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).
			Str("symbol", symbol).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Msg("quote fetch failed, retrying")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, &FetchError{Symbol: symbol, Attempts: attempts, Err: err}
	}
	log.Debug().Str("symbol", symbol).Int("attempts", attempts).Int("bytes", len(body)).Msg("quote fetched")
	return body, nil
}

func (c *Client) attempt(ctx context.Context, symbol string) ([]byte, error) {
	if err := c.pace(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	query := url.Values{}
	query.Set("function", "GLOBAL_QUOTE")
	query.Set("symbol", symbol)
	query.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: creating request: %v", ErrProvider, err))
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: performing request: %v", ErrTransient, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransient, err)
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: http %d", ErrRateLimited, res.StatusCode)
	case res.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrTransient, res.StatusCode)
	case res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices:
		return nil, backoff.Permanent(fmt.Errorf("%w: unexpected status code: %d", ErrProvider, res.StatusCode))
	}

	return classifyBody(body)
}

// classifyBody inspects the top-level keys of a 200 response.
func classifyBody(body []byte) ([]byte, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding body: %v", ErrTransient, err)
	}
	if msg, ok := envelope["Error Message"]; ok {
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrProvider, rawText(msg)))
	}
	for _, key := range []string{"Note", "Information"} {
		if msg, ok := envelope[key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, rawText(msg))
		}
	}
	return body, nil
}

func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// pace blocks until minInterval has passed since the previous request.
func (c *Client) pace(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := time.Until(c.last.Add(c.minInterval)); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	c.last = time.Now()
	return nil
}

// Probe checks that the API host answers, using the public demo key.
// A reachable host with a non-200 status yields an error wrapping ErrProvider.
func (c *Client) Probe(ctx context.Context) error {
	query := url.Values{}
	query.Set("function", "GLOBAL_QUOTE")
	query.Set("symbol", probeSymbol)
	query.Set("apikey", probeKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/query?"+query.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status code: %d", ErrProvider, res.StatusCode)
	}
	return nil
}
