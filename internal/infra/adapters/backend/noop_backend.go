package backend

import (
	"context"
	"sync"

	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"
)

var (
	_ adapter.Committer      = (*Noop)(nil)
	_ adapter.DiscountPolicy = (*Noop)(nil)
)

// Noop records commits in memory and never discounts. Used in dev mode.
type Noop struct {
	mu        sync.Mutex
	committed map[string]int
}

func NewNoop() *Noop { return &Noop{committed: make(map[string]int)} }

func (n *Noop) CommitPurchase(ctx context.Context, intent *model.PurchaseIntent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.committed[intent.ID]++
	return nil
}

func (n *Noop) LinkedAccountPrice(ctx context.Context, userID, planID string, list model.Money) (*model.Money, error) {
	return nil, nil
}

// Commits reports how many times intentID was committed.
func (n *Noop) Commits(intentID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.committed[intentID]
}
