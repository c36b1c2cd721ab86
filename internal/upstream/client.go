// Package upstream wraps net/http with retry and circuit-breaker protection
// for the third-party Seoul bike endpoints. Both upstreams are undocumented
// and flaky, so transient failures are retried with exponential backoff while
// sustained failure opens the breaker.
package upstream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined client errors.
var (
	// ErrCircuitOpen is returned while the breaker is open.
	ErrCircuitOpen = errors.New("upstream circuit open")
)

// ClientConfig holds configuration for a resilient upstream client.
type ClientConfig struct {
	// Name identifies the upstream for breaker naming and health reporting.
	Name string

	// Timeout bounds each individual HTTP call. Default: 15 seconds.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the first try.
	// Default: 2.
	MaxRetries uint64

	// InitialInterval is the first retry backoff. Default: 500ms.
	InitialInterval time.Duration

	// MaxInterval caps the retry backoff. Default: 5 seconds.
	MaxInterval time.Duration

	// BreakerTimeout is how long the breaker stays open before probing.
	// Default: 60 seconds.
	BreakerTimeout time.Duration

	// Jar optionally holds session cookies across requests. The cookie-site
	// login flow needs one; the token API does not.
	Jar http.CookieJar
}

// Client executes HTTP requests against one upstream with retry and
// circuit-breaker protection. Auth failures (4xx) pass through untouched so
// the session layer can react to them; only transport errors and 5xx
// responses are retried.
type Client struct {
	name       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	config     ClientConfig
}

// NewClient creates a resilient upstream client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	})

	return &Client{
		name: cfg.Name,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     cfg.Jar,
		},
		breaker: breaker,
		config:  cfg,
	}
}

// Name returns the upstream identifier.
func (c *Client) Name() string {
	return c.name
}

// Do executes req, retrying transport errors and 5xx responses.
// The caller owns the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes req under ctx.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response

	operation := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			attempt := req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				attempt.Body = body
			}
			r, err := c.httpClient.Do(attempt)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &serverError{status: r.StatusCode}
			}
			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				if lastResp != nil {
					lastResp.Body.Close()
				}
				lastResp = resp
			}
			return err
		}

		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp = resp
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if lastResp != nil {
			// Retries exhausted on a 5xx; hand the final response back.
			return lastResp, nil
		}
		return nil, err
	}
	return lastResp, nil
}

// State returns the current breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker's request statistics.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return "server error: " + http.StatusText(e.status)
}
