// Package fetcher implements the version-negotiating HTTP fetch: one
// logical GET that walks an ordered list of candidate API versions,
// retries transient failures with backoff, and audits every attempt.
package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ledgerline/catalog-ingest/internal/model"
	"github.com/ledgerline/catalog-ingest/internal/resilience"
)

// versionHeader is the version-selector header of the standardized API.
const versionHeader = "x-v"

// AuditSink receives one APICall record per HTTP attempt. Implementations
// must be safe for concurrent use across provider crawls.
type AuditSink interface {
	AppendAPICall(ctx context.Context, call model.APICall) error
}

// Options configures the fetcher.
type Options struct {
	UserAgent      string
	Timeout        time.Duration
	MaxAttempts    int // attempts per candidate version, including the first
	InitialBackoff time.Duration

	// RatePerHost and RateBurst size the per-host limiter created on first
	// contact with a host.
	RatePerHost rate.Limit
	RateBurst   int
}

// Request describes one logical fetch.
type Request struct {
	RunID      string
	ProviderID string
	Endpoint   string
	URL        string
	Versions   []int // candidate API versions, most preferred first
}

// Response is the outcome of a logical fetch that reached the server with
// an accepted version. A non-2xx status is returned here rather than as an
// error; the caller decides severity.
type Response struct {
	StatusCode       int
	RespondedVersion int
	ETag             string
	FetchedAt        time.Time
	Body             []byte
}

// TerminalError is returned when version candidates or retry attempts are
// exhausted. It carries the last observed status (0 for transport errors).
type TerminalError struct {
	URL        string
	LastStatus int
	Err        error
}

func (e *TerminalError) Error() string {
	return "fetch failed for " + e.URL + ": " + e.Err.Error()
}

func (e *TerminalError) Unwrap() error { return e.Err }

// errVersionRejected breaks out of the per-version retry loop on a 406.
type errVersionRejected struct {
	version int
}

func (e *errVersionRejected) Error() string {
	return "server rejected api version " + strconv.Itoa(e.version)
}

// Client performs version-negotiating fetches with per-host rate limiting.
type Client struct {
	http  *http.Client
	opts  Options
	audit AuditSink

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Client. The audit sink is required: every attempt is
// recorded through it before Get returns.
func New(opts Options, audit AuditSink) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "catalog-ingest/1.0"
	}
	if opts.RatePerHost <= 0 {
		opts.RatePerHost = 10
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		audit:    audit,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(c.opts.RatePerHost, c.opts.RateBurst)
		c.limiters[host] = lim
	}
	return lim
}

// Get performs one logical fetch. It issues the request with the most
// preferred version; a 406 advances to the next candidate immediately,
// transient failures retry the same version with exponential backoff and
// jitter (429 honors Retry-After). Exhaustion of candidates or attempts
// returns a *TerminalError. Every attempt is audited before Get returns.
func (c *Client) Get(ctx context.Context, req Request) (*Response, error) {
	if len(req.Versions) == 0 {
		return nil, eris.New("fetcher: no candidate versions")
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts:    c.opts.MaxAttempts,
		InitialBackoff: c.opts.InitialBackoff,
		OnRetry:        resilience.RetryLogger(req.ProviderID, req.Endpoint),
	}

	var lastErr error
	lastStatus := 0
	for _, version := range req.Versions {
		resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*Response, error) {
			return c.attempt(ctx, req, version)
		})
		if err == nil {
			return resp, nil
		}

		var rejected *errVersionRejected
		if errors.As(err, &rejected) {
			// Unsupported version: move on to the next candidate.
			lastErr = err
			lastStatus = http.StatusNotAcceptable
			continue
		}

		// Transient retries exhausted (or non-retryable transport failure).
		var te *resilience.TransientError
		if errors.As(err, &te) {
			lastStatus = te.StatusCode
		} else {
			lastStatus = 0
		}
		return nil, &TerminalError{URL: req.URL, LastStatus: lastStatus, Err: err}
	}

	return nil, &TerminalError{URL: req.URL, LastStatus: lastStatus, Err: lastErr}
}

// attempt issues a single HTTP request with the given version and audits it.
func (c *Client) attempt(ctx context.Context, req Request, version int) (*Response, error) {
	if err := c.limiterFor(req.URL).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	httpReq.Header.Set(versionHeader, strconv.Itoa(version))

	fetchedAt := time.Now().UTC()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.record(ctx, req, version, model.APICall{HTTPStatus: 0, FetchedAt: fetchedAt, Error: err.Error()})
		return nil, eris.Wrap(err, "fetcher: request")
	}

	body, readErr := io.ReadAll(httpResp.Body)
	_ = httpResp.Body.Close()
	if readErr != nil {
		c.record(ctx, req, version, model.APICall{HTTPStatus: httpResp.StatusCode, FetchedAt: fetchedAt, Error: readErr.Error()})
		return nil, resilience.NewTransientError(eris.Wrap(readErr, "fetcher: read body"), httpResp.StatusCode)
	}

	status := httpResp.StatusCode
	responded := respondedVersion(httpResp.Header, version)

	switch {
	case status == http.StatusNotAcceptable:
		c.record(ctx, req, version, model.APICall{HTTPStatus: status, RespondedVersion: responded, FetchedAt: fetchedAt, Error: "unsupported api version"})
		return nil, &errVersionRejected{version: version}

	case resilience.IsTransientHTTPStatus(status):
		errMsg := clip(string(body), 500)
		if errMsg == "" {
			errMsg = "HTTP " + strconv.Itoa(status)
		}
		c.record(ctx, req, version, model.APICall{HTTPStatus: status, RespondedVersion: responded, FetchedAt: fetchedAt, Error: errMsg})
		return nil, &resilience.TransientError{
			Err:        eris.Errorf("fetcher: HTTP %d from %s", status, req.URL),
			StatusCode: status,
			RetryAfter: retryAfter(httpResp.Header),
		}

	default:
		call := model.APICall{HTTPStatus: status, RespondedVersion: responded, FetchedAt: fetchedAt}
		if status != http.StatusOK && status != http.StatusNotModified {
			call.Error = clip(string(body), 500)
			if call.Error == "" {
				call.Error = "HTTP " + strconv.Itoa(status)
			}
		}
		c.record(ctx, req, version, call)
		return &Response{
			StatusCode:       status,
			RespondedVersion: responded,
			ETag:             httpResp.Header.Get("ETag"),
			FetchedAt:        fetchedAt,
			Body:             body,
		}, nil
	}
}

func (c *Client) record(ctx context.Context, req Request, version int, call model.APICall) {
	call.RunID = req.RunID
	call.ProviderID = req.ProviderID
	call.Endpoint = req.Endpoint
	call.URL = req.URL
	call.RequestedVersion = version

	if err := c.audit.AppendAPICall(ctx, call); err != nil {
		zap.L().Warn("audit append failed",
			zap.String("provider_id", req.ProviderID),
			zap.String("url", req.URL),
			zap.Error(err),
		)
	}
}

func respondedVersion(h http.Header, requested int) int {
	if raw := h.Get(versionHeader); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return requested
}

// retryAfter parses a Retry-After header as either delay-seconds or an
// HTTP date. Returns 0 when absent or unparseable.
func retryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
