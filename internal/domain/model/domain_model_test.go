//go:build !integration

package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"coupon-payments/internal/domain"
)

func jpy(v int64) Money { return Money{Currency: "JPY", Value: v} }

func TestNewPurchaseIntent(t *testing.T) {
	t.Run("should create a pending intent", func(t *testing.T) {
		start := time.Now()
		p, err := NewPurchaseIntent("1234567890", "user-1", "plan-1", ProviderWalletQR, jpy(980), "https://shop.test", 30*time.Minute)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if p.Status != StatusPending {
			t.Errorf("expected PENDING, got %s", p.Status)
		}
		if p.ExpiresAt.Sub(start) < 29*time.Minute {
			t.Errorf("expected expiry about 30 minutes out, got %v", p.ExpiresAt.Sub(start))
		}
		if !p.HasPlan() {
			t.Error("expected intent with plan")
		}
	})

	cases := []struct {
		name     string
		id       string
		provider ProviderKind
		amount   Money
		code     string
	}{
		{"unknown provider", "1", ProviderKind("Cash"), jpy(980), domain.CodeInvalidProvider},
		{"zero amount", "1", ProviderWalletQR, jpy(0), domain.CodeInvalidAmount},
		{"lowercase currency", "1", ProviderWalletQR, Money{Currency: "jpy", Value: 1}, domain.CodeInvalidAmount},
		{"id too long", strings.Repeat("9", 21), ProviderWalletQR, jpy(980), domain.CodeIntentIDTooLong},
		{"empty id", "", ProviderWalletQR, jpy(980), domain.CodeInvalidIntent},
	}
	for _, tc := range cases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			_, err := NewPurchaseIntent(tc.id, "user-1", "", tc.provider, tc.amount, "https://shop.test", time.Minute)
			if err == nil {
				t.Fatal("expected an error, but got nil")
			}
			if domain.KindOf(err) != domain.KindValidation {
				t.Errorf("expected validation kind, got %q", domain.KindOf(err))
			}
			if domain.CodeOf(err) != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, domain.CodeOf(err))
			}
		})
	}
}

func TestPurchaseIntent_Transition(t *testing.T) {
	newIntent := func(t *testing.T) *PurchaseIntent {
		t.Helper()
		p, err := NewPurchaseIntent("42", "user-1", "", ProviderWalletQR, jpy(980), "https://shop.test", time.Minute)
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
		return p
	}

	t.Run("non-terminal states move freely", func(t *testing.T) {
		p := newIntent(t)
		for _, s := range []TransactionStatus{StatusRequiresAction, StatusProcessing, StatusRequiresAction} {
			if err := p.Transition(s); err != nil {
				t.Fatalf("transition to %s: %v", s, err)
			}
		}
	})

	t.Run("terminal state refuses further writes", func(t *testing.T) {
		p := newIntent(t)
		if err := p.Transition(StatusSuccess); err != nil {
			t.Fatalf("transition to SUCCESS: %v", err)
		}
		if err := p.Transition(StatusFailed); !errors.Is(err, domain.ErrAlreadyTerminal) {
			t.Errorf("expected ErrAlreadyTerminal, got %v", err)
		}
		if err := p.Fail(domain.CodeDeclined, "late decline"); !errors.Is(err, domain.ErrAlreadyTerminal) {
			t.Errorf("expected ErrAlreadyTerminal from Fail, got %v", err)
		}
		if p.Status != StatusSuccess || p.FailureCode != "" {
			t.Errorf("terminal intent was mutated: %+v", p)
		}
	})

	t.Run("invalid status is rejected", func(t *testing.T) {
		p := newIntent(t)
		if err := p.Transition(TransactionStatus("WHATEVER")); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPurchaseIntent_ApplyDiscount(t *testing.T) {
	p, _ := NewPurchaseIntent("42", "user-1", "plan-1", ProviderCardRedirect, jpy(980), "https://shop.test", time.Minute)

	if err := p.ApplyDiscount(jpy(1200)); err == nil {
		t.Error("expected a discount above list price to be rejected")
	}
	if err := p.ApplyDiscount(jpy(780)); err != nil {
		t.Fatalf("expected discount to apply, got %v", err)
	}
	if p.Amount.Value != 780 || p.ListAmount.Value != 980 {
		t.Errorf("unexpected amounts: amount=%d list=%d", p.Amount.Value, p.ListAmount.Value)
	}

	p.ProviderTransactionID = "tx-1"
	if err := p.ApplyDiscount(jpy(500)); err == nil {
		t.Error("expected discount to be refused once the provider acknowledged the intent")
	}
}
