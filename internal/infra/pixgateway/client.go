// Package pixgateway adapts the external PIX payment service to
// port.PaymentGateway. Client talks to the HTTP gateway; Local issues codes
// in-process for deployments without one.
package pixgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/monety-ledger-go/internal/port"
)

var tracer = otel.Tracer("pixgateway")

// Client calls the HTTP PIX gateway (POST /deposito, POST /saque).
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewClient creates a new gateway client.
func NewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
		logger:     logger,
	}
}

// maxErrorBody caps how much of a failed response is read.
const maxErrorBody = 64 << 10

// statusError is a non-2xx answer from the gateway. message is the reason
// from the response body, if the gateway sent one.
type statusError struct {
	path    string
	status  int
	message string
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("gateway %s returned status %d: %s", e.path, e.status, e.message)
	}
	return fmt.Sprintf("gateway %s returned status %d", e.path, e.status)
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// errorMessage extracts {"message": ...} or {"error": ...} from a failed
// response. Bodies that are not JSON yield "".
func errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var out errorResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(out.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(out.Error)
}

type chargeResponse struct {
	PixCopiaECola string `json:"pix_copia_e_cola"`
	DepositID     string `json:"depositId"`
}

// CreateCharge asks the gateway for a PIX copy-and-paste code. Charges are
// retried: an unpaid duplicate charge costs nothing.
func (c *Client) CreateCharge(ctx context.Context, req *port.ChargeRequest) (*port.Charge, error) {
	ctx, span := tracer.Start(ctx, "PixGateway.CreateCharge")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Float64("amount", req.Amount),
	)

	var out chargeResponse
	err := c.call(ctx, "deposito", func() error {
		return resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.post(ctx, "/deposito", req, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	if out.PixCopiaECola == "" {
		return nil, &domain.ErrExternalService{Service: "pixgateway/deposito", Err: fmt.Errorf("empty pix code")}
	}

	return &port.Charge{PixCode: out.PixCopiaECola, GatewayID: out.DepositID}, nil
}

// RequestPayout registers the withdrawal with the gateway. It is attempted once:
// a payout whose response was lost must not be sent again.
func (c *Client) RequestPayout(ctx context.Context, req *port.PayoutRequest) (*port.Payout, error) {
	ctx, span := tracer.Start(ctx, "PixGateway.RequestPayout")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Float64("amount", req.Amount),
	)

	err := c.call(ctx, "saque", func() error {
		return c.post(ctx, "/saque", req, nil)
	})
	if err != nil {
		return nil, err
	}

	return &port.Payout{Status: domain.WithdrawalProcessing}, nil
}

// call runs fn inside the bulkhead and the circuit breaker and maps failures
// to domain errors.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return &domain.ErrExternalService{Service: "pixgateway/" + op, Err: err}
	}
	defer c.bulkhead.Release()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}

	c.logger.Warn("pixgateway: call failed", zap.String("operation", op), zap.Error(err))
	if resilience.IsOpen(err) {
		return &domain.ErrCircuitOpen{Service: "pixgateway"}
	}
	ext := &domain.ErrExternalService{Service: "pixgateway/" + op, Err: err}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		ext.Message = statusErr.message
	}
	return ext
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return resilience.Permanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &statusError{path: path, status: resp.StatusCode, message: errorMessage(resp.Body)}
		if resp.StatusCode < 500 {
			return resilience.Permanent(statusErr)
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
