// Package dashboard talks to the school-management backend's dashboard
// endpoints.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/schoolctx/internal/domain/models"
	"github.com/dalemusser/schoolctx/pantry/requestid"
	"github.com/dalemusser/schoolctx/pantry/retry"
	"github.com/dalemusser/schoolctx/pantry/timeout"
	"go.uber.org/zap"
)

const (
	switchingPath = "/dashboard/school-switching"
	switchPath    = "/dashboard/switch-school"

	maxBodyBytes = 1 << 20
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Status int
	// Message is whatever ErrorMessage found in the body.
	Message string
}

// Error includes the backend message when there was one.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("dashboard: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("dashboard: status %d", e.Status)
}

// ErrRejected is returned when the backend answers a switch with
// success=false.
var ErrRejected = errors.New("dashboard: switch rejected")

// Config points a Client at the backend.
type Config struct {
	// BaseURL is the backend root, e.g. https://api.example/v1. A trailing
	// slash is ignored.
	BaseURL string
	// Timeout bounds each HTTP call. Zero uses the pantry/timeout default.
	Timeout time.Duration
	// FetchAttempts bounds the school-switching read, counting the first
	// call. Default 2.
	FetchAttempts int
	// RetryDelay is the pause between read attempts. Default 200ms.
	RetryDelay time.Duration
	// Transport overrides the pooled transport, mainly for tests.
	Transport http.RoundTripper
}

// Client calls the dashboard API on behalf of a user, forwarding their
// bearer token.
type Client struct {
	base   *url.URL
	http   *http.Client
	retry  retry.Config
	logger *zap.Logger
}

// New validates cfg.BaseURL and builds a client whose requests carry
// the caller's request id. Only SchoolSwitching is retried, and only on
// transport errors and 5xx answers.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("dashboard: invalid base url %q", cfg.BaseURL)
	}
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}

	tc := timeout.DefaultClientConfig()
	if cfg.Timeout > 0 {
		tc.Timeout = cfg.Timeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = timeout.NewTransport(tc)
	}

	c := &Client{
		base:   base,
		http:   timeout.NewClient(tc, &requestid.Transport{Base: transport}),
		logger: logger,
	}
	c.retry = retry.Attempts(cfg.FetchAttempts, cfg.RetryDelay)
	c.retry.RetryIf = retryable
	c.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Debug("retrying school-switching fetch",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	return c, nil
}

// retryable is true for transport errors and 5xx responses.
func retryable(err error) bool {
	if retry.IsPermanent(err) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	return true
}

// SchoolSwitching fetches the user's current and available schools.
func (c *Client) SchoolSwitching(ctx context.Context, token string) (models.SchoolSwitchingData, error) {
	return retry.DoWithResult(ctx, c.retry, func(ctx context.Context) (models.SchoolSwitchingData, error) {
		body, err := c.do(ctx, http.MethodGet, switchingPath, token, nil)
		if err != nil {
			return models.SchoolSwitchingData{}, err
		}
		p, err := Unwrap(body)
		if err != nil {
			return models.SchoolSwitchingData{}, retry.PermanentError(err)
		}
		return NormalizeSwitchingData(p), nil
	})
}

// SwitchSchool asks the backend to make schoolID the user's active
// school. It is not retried. A success=false answer is ErrRejected
// wrapped with the backend's message.
func (c *Client) SwitchSchool(ctx context.Context, token, schoolID string) (SwitchResult, error) {
	reqBody, err := json.Marshal(map[string]string{"schoolId": schoolID})
	if err != nil {
		return SwitchResult{}, err
	}
	body, err := c.do(ctx, http.MethodPost, switchPath, token, reqBody)
	if err != nil {
		return SwitchResult{}, err
	}

	// Some deployments answer 204 or an empty body on success.
	if len(bytes.TrimSpace(body)) == 0 {
		return SwitchResult{Success: true}, nil
	}
	res, err := NormalizeSwitchResult(body)
	if err != nil {
		return SwitchResult{}, err
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = ErrorMessage(body)
		}
		return res, &RejectedError{Message: msg}
	}
	return res, nil
}

// RejectedError carries the backend's reason for refusing a switch.
type RejectedError struct {
	Message string
}

// Error includes the backend's reason when it gave one.
func (e *RejectedError) Error() string {
	if e.Message == "" {
		return ErrRejected.Error()
	}
	return ErrRejected.Error() + ": " + e.Message
}

// Unwrap lets errors.Is match ErrRejected.
func (e *RejectedError) Unwrap() error { return ErrRejected }

func (c *Client) do(ctx context.Context, method, path, token string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return nil, retry.PermanentError(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("dashboard: read %s: %w", path, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Status: res.StatusCode, Message: ErrorMessage(b)}
	}
	return b, nil
}
