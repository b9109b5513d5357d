//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersNormalizeLabels(t *testing.T) {
	IncIntentTerminal(" WalletQR ", "SUCCESS", "")
	if got := testutil.ToFloat64(intentsTerminal.WithLabelValues("walletqr", "success", "")); got != 1 {
		t.Errorf("expected 1 terminal intent with normalized labels, got %v", got)
	}

	before := testutil.ToFloat64(sessionDecryptFailures)
	IncSessionDecryptFailure()
	if got := testutil.ToFloat64(sessionDecryptFailures); got != before+1 {
		t.Errorf("expected decrypt failures to increase by one, got %v -> %v", before, got)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should skip known collectors, got %v", err)
	}
	IncIntentInitiated("CardRedirect")
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "payment_intents_initiated_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected payment_intents_initiated_total in the registry")
	}
}

func TestAddSweptSkipsZero(t *testing.T) {
	AddSwept("expired", 0)
	AddSwept("expired", 3)
	if got := testutil.ToFloat64(sweptIntents.WithLabelValues("expired")); got != 3 {
		t.Errorf("expected 3 swept intents, got %v", got)
	}
}
