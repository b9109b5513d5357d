package adapter

import (
	"context"

	"coupon-payments/internal/domain/model"
)

// CallbackURLs are the three return addresses handed to a provider.
type CallbackURLs struct {
	Success string
	Failure string
	Cancel  string
}

// InitiationResult is the tagged outcome of ProviderAdapter.Initiate.
// Exactly one of RedirectTarget, HTMLFragment or QRTarget is set for a
// non-terminal result; a FAILED result carries Code, Message and Err.
type InitiationResult struct {
	Status                model.TransactionStatus
	RedirectTarget        string
	Method                string // GET | POST, how the browser must reach RedirectTarget
	HTMLFragment          string
	QRTarget              string
	ProviderTransactionID string
	ProviderCustomerID    string

	Code    string
	Message string
	Err     error // *domain.Error: decline vs transient
}

// StatusResult is a normalized status lookup.
type StatusResult struct {
	Status            model.TransactionStatus
	ResultDescription string
	Code              string
	Err               error // transient failures only; a decline is Status=FAILED
}

// ProviderAdapter is the hex port for payment providers. Implementations never
// return Go errors across this boundary, only tagged results.
type ProviderAdapter interface {
	Kind() model.ProviderKind
	Initiate(ctx context.Context, intent *model.PurchaseIntent, urls CallbackURLs) InitiationResult
}

// StatusChecker is implemented by providers that support transaction lookup.
type StatusChecker interface {
	CheckStatus(ctx context.Context, providerTransactionID string) StatusResult
}

// ReturnCodeTranslator is implemented by providers whose return URL carries
// their own outcome codes.
type ReturnCodeTranslator interface {
	TranslateReturnCode(code string) string
}

// WebhookVerifier authenticates out-of-band notifications from a provider.
type WebhookVerifier interface {
	VerifyCardWebhook(p model.CardWebhookPayload) bool
}

type userAgentKey struct{}

// WithUserAgent carries the purchaser's browser user agent to adapters that
// render differently for mobile devices.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

func UserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}
