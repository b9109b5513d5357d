//go:build !integration

package postgres

import (
	"errors"
	"testing"

	"coupon-payments/internal/domain"
)

func TestGetExecutor(t *testing.T) {
	t.Run("should refuse a nil tx without a pool", func(t *testing.T) {
		if _, err := getExecutor(nil, nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
	t.Run("should refuse foreign tx handles", func(t *testing.T) {
		if _, err := getExecutor(nil, "not-a-tx"); !errors.Is(err, domain.ErrInvalidExecContext) {
			t.Fatalf("expected ErrInvalidExecContext, got %v", err)
		}
	})
}

func TestMapExecErr(t *testing.T) {
	if got := mapExecErr(domain.ErrInvalidExecContext); got != domain.ErrInvalidExecContext {
		t.Errorf("executor errors must pass through, got %v", got)
	}
	err := mapExecErr(errors.New("connection reset"))
	if !errors.Is(err, domain.ErrOperationFailed) {
		t.Errorf("driver errors must wrap ErrOperationFailed, got %v", err)
	}
}
