// Package supabase provides a client for Supabase (PostgREST).
// Used as the durable record store for ledger users and credentials.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// IsExpected reports errors that describe the data rather than the health of
// Supabase. The circuit breaker does not count them as failures.
func IsExpected(err error) bool {
	var notFound *domain.ErrNotFound
	var conflict *domain.ErrConflict
	var statusErr *statusError
	return errors.As(err, &notFound) || errors.As(err, &conflict) ||
		(errors.As(err, &statusErr) && statusErr.status < 500)
}

type statusError struct {
	method string
	path   string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase %s %s returned %d: %s", e.method, e.path, e.status, e.body)
}

// doRequest executes an authenticated request to Supabase PostgREST and
// returns the response body. 409 maps to domain.ErrConflict; other 4xx
// responses are permanent and not retried.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	var reader io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, resilience.Permanent(err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode == http.StatusConflict {
		return nil, resilience.Permanent(&domain.ErrConflict{Message: "registro já existe"})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		statusErr := &statusError{method: method, path: path, status: resp.StatusCode, body: string(body)}
		if resp.StatusCode < 500 {
			return nil, resilience.Permanent(statusErr)
		}
		return nil, statusErr
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return body, nil
}

// execute runs fn behind the circuit breaker with retries. Domain errors are
// returned as they are; anything else becomes ErrExternalService.
func (c *Client) execute(ctx context.Context, fn func() error) error {
	return c.run(func() error {
		return resilience.RetryWithBackoff(ctx, c.cfg, fn)
	})
}

// executeOnce runs a write behind the circuit breaker without retrying it: a
// lost response would otherwise apply the write twice.
func (c *Client) executeOnce(fn func() error) error {
	return c.run(func() error {
		if err := fn(); err != nil {
			if resilience.IsPermanent(err) {
				return errors.Unwrap(err)
			}
			return err
		}
		return nil
	})
}

func (c *Client) run(fn func() error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}

	if resilience.IsOpen(err) {
		return &domain.ErrCircuitOpen{Service: "supabase"}
	}
	var notFound *domain.ErrNotFound
	var conflict *domain.ErrConflict
	if errors.As(err, &notFound) || errors.As(err, &conflict) {
		return err
	}
	return &domain.ErrExternalService{Service: "supabase", Err: err}
}
