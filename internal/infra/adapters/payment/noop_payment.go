package payment

import (
	"context"
	"fmt"
	"sync"

	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"
)

var (
	_ adapter.ProviderAdapter      = (*NoopProvider)(nil)
	_ adapter.StatusChecker        = (*NoopProvider)(nil)
	_ adapter.ReturnCodeTranslator = (*NoopProvider)(nil)
	_ adapter.WebhookVerifier      = (*NoopProvider)(nil)
)

// NoopProvider is a scripted in-memory provider for dev mode and tests.
// Initiate returns the next scripted result (or a kind-appropriate default);
// CheckStatus walks Statuses and then repeats the last one.
type NoopProvider struct {
	kind model.ProviderKind

	// WebhookSecret signs card webhooks in dev mode.
	WebhookSecret string

	mu          sync.Mutex
	seq         int
	initiations []adapter.InitiationResult
	statuses    []adapter.StatusResult
	checks      int
	calls       []string // intent ids passed to Initiate
}

func NewNoopProvider(kind model.ProviderKind) *NoopProvider {
	return &NoopProvider{kind: kind}
}

func (n *NoopProvider) Kind() model.ProviderKind { return n.kind }

// ScriptInitiate queues initiation results.
func (n *NoopProvider) ScriptInitiate(rs ...adapter.InitiationResult) *NoopProvider {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.initiations = append(n.initiations, rs...)
	return n
}

// ScriptStatus queues status results, e.g. REQUIRES_ACTION, PROCESSING, SUCCESS.
func (n *NoopProvider) ScriptStatus(statuses ...model.TransactionStatus) *NoopProvider {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range statuses {
		n.statuses = append(n.statuses, adapter.StatusResult{Status: s})
	}
	return n
}

func (n *NoopProvider) Initiate(ctx context.Context, intent *model.PurchaseIntent, urls adapter.CallbackURLs) adapter.InitiationResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, intent.ID)
	if len(n.initiations) > 0 {
		r := n.initiations[0]
		n.initiations = n.initiations[1:]
		return r
	}
	n.seq++
	ref := fmt.Sprintf("noop-%d", n.seq)
	switch n.kind {
	case model.ProviderWalletQR:
		return adapter.InitiationResult{Status: model.StatusRequiresAction, QRTarget: "https://qr.example.test/" + ref, ProviderTransactionID: ref}
	case model.ProviderCardRedirect:
		return adapter.InitiationResult{Status: model.StatusPending, RedirectTarget: "https://vault.example.test/register/" + ref, Method: "POST", ProviderCustomerID: "cus-" + ref}
	default:
		return adapter.InitiationResult{Status: model.StatusPending, RedirectTarget: urls.Success, Method: "GET", ProviderTransactionID: ref}
	}
}

func (n *NoopProvider) CheckStatus(ctx context.Context, providerTransactionID string) adapter.StatusResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.checks++
	if len(n.statuses) == 0 {
		return adapter.StatusResult{Status: model.StatusSuccess}
	}
	r := n.statuses[0]
	if len(n.statuses) > 1 {
		n.statuses = n.statuses[1:]
	}
	return r
}

func (n *NoopProvider) TranslateReturnCode(code string) string { return CardReturnCode(code) }

func (n *NoopProvider) VerifyCardWebhook(p model.CardWebhookPayload) bool {
	return VerifyCardWebhook(n.WebhookSecret, p)
}

// Checks reports how many status lookups were made.
func (n *NoopProvider) Checks() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.checks
}

// Calls returns the intent ids Initiate was called with.
func (n *NoopProvider) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}
