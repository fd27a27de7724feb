// Package api talks to the remote board listing and detail endpoints.
package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/ppiankov/boardharvest/internal/cache"
	"github.com/ppiankov/boardharvest/internal/model"
	"github.com/ppiankov/boardharvest/internal/retry"
	"github.com/ppiankov/boardharvest/internal/util"
	"github.com/ppiankov/boardharvest/internal/worker"
)

// Client issues authenticated GET requests against the listing and detail endpoints
type Client struct {
	httpClient    *http.Client
	listingURL    string
	key           string
	userAgent     string
	maxBytes      int64
	listTimeout   time.Duration
	detailTimeout time.Duration
	limiter       *worker.Limiter
	robots        *util.RobotsChecker
	cache         cache.Cache
	cacheTTL      time.Duration
	logger        *slog.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithCache serves detail bodies from c when present and stores successful ones
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(cl *Client) {
		cl.cache = c
		cl.cacheTTL = ttl
	}
}

// WithHTTPClient replaces the underlying HTTP client (tests use httptest clients)
func WithHTTPClient(hc *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = hc
	}
}

// NewClient creates a client from the API and HTTP settings.
// detailTimeout bounds each detail request; httpCfg.Timeout bounds each listing request.
func NewClient(apiCfg model.APIConfig, httpCfg model.HTTPConfig, detailTimeout time.Duration, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	proxyFunc, err := util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy)
	if err != nil {
		return nil, fmt.Errorf("configure proxy: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFunc
	if httpCfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed mirrors
	}

	maxBytes := httpCfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		listingURL:    apiCfg.ListingURL,
		key:           apiCfg.Key,
		userAgent:     httpCfg.UserAgent,
		maxBytes:      maxBytes,
		listTimeout:   httpCfg.Timeout,
		detailTimeout: detailTimeout,
		limiter:       worker.NewLimiter(httpCfg.RequestsPerSecond, httpCfg.Burst),
		logger:        logger.With("component", "api"),
	}

	for _, hl := range httpCfg.HostLimits {
		c.limiter.SetHostRate(hl.Host, hl.RequestsPerSecond, hl.Burst)
	}

	for _, opt := range opts {
		opt(c)
	}

	if httpCfg.RespectRobots {
		c.robots = util.NewRobotsChecker(c.httpClient, httpCfg.UserAgent, time.Hour)
	}

	return c, nil
}

// get performs one GET and returns the body of a 2xx response
func (c *Client) get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("%w: bad request URL %q", retry.ErrInvalidInput, rawURL)
	}

	if c.robots != nil {
		allowed, delay, _ := c.robots.CanFetch(ctx, rawURL)
		if !allowed {
			return nil, fmt.Errorf("%w: %s disallowed by robots.txt", retry.ErrInvalidInput, parsed.Path)
		}
		c.limiter.SetHostDelay(parsed.Host, delay)
	}

	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", retry.ErrInvalidInput, err)
	}

	if c.key != "" {
		req.Header.Set("Authorization", c.key)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &retry.StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode), URL: rawURL}
	}

	// Read body with size limit
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}
