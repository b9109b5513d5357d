package adapter

import (
	"context"

	"coupon-payments/internal/domain/model"
)

// Committer finalizes a paid plan in the business backend. The intent id is the
// idempotency key, so retried commits are safe on the backend side too.
type Committer interface {
	CommitPurchase(ctx context.Context, intent *model.PurchaseIntent) error
}

// DiscountPolicy answers whether the user's linked account earns a discounted price.
// A nil Money means the list price applies.
type DiscountPolicy interface {
	LinkedAccountPrice(ctx context.Context, userID, planID string, list model.Money) (*model.Money, error)
}

// IntentEvent is published once per terminal transition.
type IntentEvent struct {
	IntentID string                  `json:"intentId"`
	UserID   string                  `json:"userId"`
	PlanID   string                  `json:"planId,omitempty"`
	Provider model.ProviderKind      `json:"providerKind"`
	Status   model.TransactionStatus `json:"status"`
	Code     string                  `json:"code,omitempty"`
	Amount   model.Money             `json:"amount"`
}

type EventPublisher interface {
	PublishIntentEvent(ctx context.Context, ev IntentEvent) error
}
