// Package retry runs calls to upstream services with a bounded exponential backoff.
package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"

	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v80"
)

const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 500 * time.Millisecond
	DefaultMaxJitter      = 250 * time.Millisecond
	DefaultAttemptTimeout = 30 * time.Second
)

type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxJitter      time.Duration
	AttemptTimeout time.Duration
}

// StatusError is a plain HTTP response the caller asked to retry on.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream responded %d %s", e.Code, http.StatusText(e.Code))
}

type Client struct {
	cfg  Config
	HTTP *http.Client
	// NewTimer overrides the wait between attempts.
	NewTimer func() backoff.Timer
}

func New(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = DefaultMaxJitter
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}

	return &Client{cfg: cfg, HTTP: &http.Client{}}
}

// schedule waits base * 2^(n-1) plus a random jitter before attempt n+1.
type schedule struct {
	base    time.Duration
	jitter  time.Duration
	attempt int
}

func (s *schedule) NextBackOff() time.Duration {
	s.attempt++
	delay := s.base << (s.attempt - 1)
	if s.jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(s.jitter) + 1))
	}
	return delay
}

func (s *schedule) Reset() {
	s.attempt = 0
}

// Do runs op until it succeeds, fails permanently or the attempts run out. Each
// attempt gets its own deadline. The last error is returned.
func (c *Client) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()

		err := op(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		slog.WarnContext(ctx, "retrying upstream call", common.ExtractTraceIDFromCtx(ctx),
			slog.String("call", name), slog.Int("attempt", attempt), slog.Duration("delay", delay),
			slog.Any(constant.LogFieldErr, err))
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&schedule{base: c.cfg.BaseDelay, jitter: c.cfg.MaxJitter}, uint64(c.cfg.MaxAttempts-1)),
		ctx,
	)

	var timer backoff.Timer
	if c.NewTimer != nil {
		timer = c.NewTimer()
	}

	return backoff.RetryNotifyWithTimer(operation, b, notify, timer)
}

// DoRequest sends the request built by newRequest, retrying on 429 and 5xx. The body
// of the returned response is already buffered.
func (c *Client) DoRequest(ctx context.Context, newRequest func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var resp *http.Response

	err := c.Do(ctx, "http", func(ctx context.Context) error {
		req, err := newRequest(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		r, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}

		if retryableStatus(r.StatusCode) {
			return &StatusError{Code: r.StatusCode}
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// IsRetryable reports whether err is worth another attempt: transport timeouts,
// refused connections, expired per-attempt deadlines, 429 and 5xx.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return retryableStatus(stripeErr.HTTPStatusCode)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.Code)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
