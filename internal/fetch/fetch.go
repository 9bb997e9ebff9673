// Package fetch provides the polite HTTP client used for directory and
// faculty-page scraping: per-host rate limiting, robots.txt enforcement,
// retry with backoff, and a parsed-document view for extraction.
package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/riq-labs/faculty-pipeline/internal/resilience"
)

// ErrRobotsDisallowed is returned when robots.txt forbids fetching a URL.
// It is not transient: the URL is skipped, not retried.
var ErrRobotsDisallowed = eris.New("fetch: disallowed by robots.txt")

const defaultMaxBody = 4 << 20 // 4 MiB per page

// Client is a scraping-oriented HTTP client. Requests to the same host
// share a rate limiter; hosts are independent.
type Client struct {
	http      *http.Client
	userAgent string
	policy    resilience.Policy
	robots    *robotsCache
	maxBody   int64

	hostRPS   float64
	hostBurst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHostRate sets the per-host request rate.
func WithHostRate(rps float64, burst int) Option {
	return func(c *Client) {
		c.hostRPS = rps
		c.hostBurst = burst
	}
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithRobots enables or disables robots.txt enforcement.
func WithRobots(enabled bool) Option {
	return func(c *Client) {
		if enabled {
			c.robots = newRobotsCache(c)
		} else {
			c.robots = nil
		}
	}
}

// WithMaxBodySize caps the number of response bytes read per page.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// New creates a Client with robots enforcement on and a 1 req/s per-host
// rate, the polite defaults for university sites.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: "faculty-pipeline/1.0",
		policy:    resilience.DefaultPolicy(),
		maxBody:   defaultMaxBody,
		hostRPS:   1,
		hostBurst: 2,
		limiters:  make(map[string]*rate.Limiter),
	}
	c.robots = newRobotsCache(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	host = strings.ToLower(host)
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.hostRPS), c.hostBurst)
		c.limiters[host] = lim
	}
	return lim
}

// Get fetches a URL and returns the body. Non-2xx statuses are classified
// (429/5xx transient, others permanent) and retried per the client policy.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, eris.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}

	if c.robots != nil && !c.robots.allowed(ctx, u) {
		return nil, eris.Wrap(ErrRobotsDisallowed, rawURL)
	}

	lim := c.limiterFor(u.Host)
	return resilience.DoVal(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
		body, err := c.getOnce(ctx, rawURL)
		if err != nil {
			zap.L().Debug("fetch failed",
				zap.String("url", rawURL),
				zap.Error(err),
			)
		}
		return body, err
	})
}

func (c *Client) getOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.ClassifyHTTPStatus("fetch", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetch: read body"), 0)
	}
	return body, nil
}

// Document fetches a URL and parses it as HTML.
func (c *Client) Document(ctx context.Context, rawURL string) (*Document, error) {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return ParseDocument(rawURL, bytes.NewReader(body))
}
