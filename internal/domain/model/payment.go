package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"coupon-payments/internal/domain"
)

// MaxIntentIDLen is the weakest provider's request-id limit (WalletQR).
const MaxIntentIDLen = 20

type ProviderKind string

const (
	ProviderCardRedirect   ProviderKind = "CardRedirect"
	ProviderWalletRedirect ProviderKind = "WalletRedirect"
	ProviderWalletQR       ProviderKind = "WalletQR"
)

func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderCardRedirect, ProviderWalletRedirect, ProviderWalletQR:
		return true
	}
	return false
}

// TransactionStatus is the canonical lifecycle value every provider is normalized into.
type TransactionStatus string

const (
	StatusPending        TransactionStatus = "PENDING"
	StatusProcessing     TransactionStatus = "PROCESSING"
	StatusRequiresAction TransactionStatus = "REQUIRES_ACTION" // a human must scan / open the app; keep polling
	StatusSuccess        TransactionStatus = "SUCCESS"
	StatusFailed         TransactionStatus = "FAILED"
)

func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusRequiresAction, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether s may move to next.
// Terminal states accept nothing; non-terminal states may move anywhere else.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	if s.IsTerminal() || !next.Valid() {
		return false
	}
	return s != next
}

// Money is an integer minor-unit amount (JPY has no minor unit, so 980 means ¥980).
type Money struct {
	Currency string `json:"currencyCode"`
	Value    int64  `json:"value"`
}

func (m Money) Valid() bool {
	return m.Value > 0 && len(m.Currency) == 3 && strings.ToUpper(m.Currency) == m.Currency
}

// PurchaseIntent is a single attempted purchase or payment-method registration.
type PurchaseIntent struct {
	ID                    string
	UserID                string
	PlanID                string // empty => payment-method-only intent, nothing to commit
	Amount                Money  // already discounted when the linked-account discount applies
	ListAmount            Money
	Provider              ProviderKind
	CallbackBase          string
	Status                TransactionStatus
	ProviderTransactionID string
	ProviderCustomerID    string
	CardID                string
	FailureCode           string
	FailureMessage        string
	CommittedAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ExpiresAt             time.Time
}

// NewPurchaseIntent validates the shape of an intent before any provider is contacted.
func NewPurchaseIntent(id, userID, planID string, provider ProviderKind, amount Money, callbackBase string, ttl time.Duration) (*PurchaseIntent, error) {
	if userID == "" || callbackBase == "" {
		return nil, domain.NewValidationError(domain.CodeInvalidIntent, "user and callback base are required")
	}
	if !provider.Valid() {
		return nil, domain.NewValidationError(domain.CodeInvalidProvider, "unknown provider kind")
	}
	if !amount.Valid() {
		return nil, domain.NewValidationError(domain.CodeInvalidAmount, "amount must be positive with an ISO currency code")
	}
	if id == "" {
		return nil, domain.NewValidationError(domain.CodeInvalidIntent, "intent id is required")
	}
	if utf8.RuneCountInString(id) > MaxIntentIDLen {
		return nil, domain.NewValidationError(domain.CodeIntentIDTooLong, "intent id exceeds 20 characters")
	}
	now := time.Now()
	return &PurchaseIntent{
		ID:           id,
		UserID:       userID,
		PlanID:       planID,
		Amount:       amount,
		ListAmount:   amount,
		Provider:     provider,
		CallbackBase: callbackBase,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}, nil
}

func (p *PurchaseIntent) IsTerminal() bool { return p.Status.IsTerminal() }

// HasPlan is false for payment-method-only intents.
func (p *PurchaseIntent) HasPlan() bool { return p.PlanID != "" }

// ApplyDiscount substitutes the discounted amount. It is only valid while the
// intent is still being constructed, so the amount is never recomputed later.
func (p *PurchaseIntent) ApplyDiscount(discounted Money) error {
	if p.Status != StatusPending || p.ProviderTransactionID != "" {
		return domain.ErrInvalidArgument
	}
	if !discounted.Valid() || discounted.Currency != p.ListAmount.Currency || discounted.Value > p.ListAmount.Value {
		return domain.NewValidationError(domain.CodeInvalidAmount, "discounted amount must not exceed the list price")
	}
	p.Amount = discounted
	return nil
}

// Transition moves the intent to next, refusing any write once terminal.
func (p *PurchaseIntent) Transition(next TransactionStatus) error {
	if p.Status.IsTerminal() {
		return domain.ErrAlreadyTerminal
	}
	if next == p.Status {
		return nil
	}
	if !p.Status.CanTransition(next) {
		return domain.ErrInvalidArgument
	}
	p.Status = next
	p.UpdatedAt = time.Now()
	return nil
}

// Fail moves the intent to FAILED carrying the normalized code and the provider's message.
func (p *PurchaseIntent) Fail(code, message string) error {
	if err := p.Transition(StatusFailed); err != nil {
		return err
	}
	p.FailureCode = code
	p.FailureMessage = message
	return nil
}

// CardWebhookPayload is what the card vault posts when a registration completes out-of-band.
type CardWebhookPayload struct {
	CustomerID     string `json:"customerId"`
	CustomerCardID string `json:"customerCardId"`
	OperationType  string `json:"operationType"`
	UpdateDate     string `json:"updateDate"`
	IntegrityHash  string `json:"integrityHash"`
}

const (
	CardOperationRegister       = "register"
	CardOperationRegisterFailed = "register_failed"
)

// DeliveryKey identifies one webhook delivery for replay detection.
func (w CardWebhookPayload) DeliveryKey() string {
	return w.CustomerID + "|" + w.CustomerCardID + "|" + w.OperationType + "|" + w.UpdateDate
}
