package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"coupon-payments/internal/domain"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"
	"coupon-payments/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every provider call when the config leaves it unset.
const DefaultTimeout = 20 * time.Second

// maxErrorBody caps how much of a provider error body is read for its message.
const maxErrorBody = 4 << 10

// apiClient is the JSON-over-HTTP plumbing shared by all provider adapters.
// Errors it returns are always *domain.Error: transient for network failures
// and timeouts, PROVIDER_ERROR for non-2xx or malformed bodies.
type apiClient struct {
	base     string
	provider model.ProviderKind
	client   *http.Client
	headers  map[string]string
	log      *zerolog.Logger
}

func newAPIClient(base string, provider model.ProviderKind, timeout time.Duration, headers map[string]string, logger *zerolog.Logger) *apiClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "payment").Str("provider", string(provider)).Logger()
	return &apiClient{
		base:     strings.TrimRight(base, "/"),
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		headers:  headers,
		log:      &l,
	}
}

// providerError is the common shape providers use to explain a rejection.
type providerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e providerError) text() (code, msg string) {
	code, msg = e.Code, e.Message
	if e.Error != nil {
		if code == "" {
			code = e.Error.Code
		}
		if msg == "" {
			msg = e.Error.Message
		}
	}
	return code, msg
}

func (c *apiClient) do(ctx context.Context, op, method, path string, extra map[string]string, in, out any) error {
	defer metrics.ObserveProviderCall(string(c.provider), op, time.Now())

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return domain.NewValidationError(domain.CodeInvalidIntent, "request could not be encoded")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return domain.NewDeclineError(domain.CodeProviderError, "invalid provider endpoint")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Msg("provider call failed")
		if isTimeout(err) {
			return &domain.Error{Kind: domain.KindProviderTransient, Code: domain.CodeNetworkError, Message: "provider did not answer in time", Err: err}
		}
		return domain.NewTransientError("provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var pe providerError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(raw, &pe)
		code, msg := pe.text()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.log.Warn().Str("op", op).Int("status", resp.StatusCode).Str("provider_code", code).Msg("provider rejected request")
		de := domain.NewDeclineError(domain.CodeProviderError, msg)
		de.Err = fmt.Errorf("http %d %s", resp.StatusCode, code)
		return de
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.log.Warn().Err(err).Str("op", op).Msg("malformed provider response")
		de := domain.NewDeclineError(domain.CodeProviderError, "malformed provider response")
		de.Err = err
		return de
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// idempotencyKey is derived from the intent alone, so every retry of the same
// initiation carries the same key.
func idempotencyKey(intent *model.PurchaseIntent) string {
	var ms uint64
	if !intent.CreatedAt.IsZero() {
		ms = ulid.Timestamp(intent.CreatedAt)
	}
	sum := sha256.Sum256([]byte(intent.ID))
	return ulid.MustNew(ms, bytes.NewReader(sum[:])).String()
}

// failed turns err into a FAILED initiation result.
func failed(err error) adapter.InitiationResult {
	code, msg := domain.CodeOf(err), err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Message
	}
	if code == "" {
		code = domain.CodeProviderError
	}
	return adapter.InitiationResult{Status: model.StatusFailed, Code: code, Message: msg, Err: err}
}
