package usecase

import (
	"net/url"
	"strings"

	"coupon-payments/internal/domain"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"
)

// MaxCallbackURLLen is the weakest provider's limit on a return URL.
const MaxCallbackURLLen = 1000

// Return outcomes, the last path segment of a callback URL.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeCancel  = "cancel"
)

type queryField struct{ key, value string }

// BuildCallbackURLs returns origin+returnPath/{outcome}?status=..&intentId=..[&provider=..][&planId=..].
// Optional fields are dropped, last first, until every URL fits; when even the
// required-only URL is too long the intent is rejected.
func BuildCallbackURLs(returnPath string, intent *model.PurchaseIntent) (adapter.CallbackURLs, error) {
	base := strings.TrimRight(intent.CallbackBase, "/") + "/" + strings.Trim(returnPath, "/")
	optional := []queryField{
		{"provider", string(intent.Provider)},
		{"planId", intent.PlanID},
	}
	var out adapter.CallbackURLs
	for _, o := range []struct {
		outcome string
		status  model.TransactionStatus
		dst     *string
	}{
		{OutcomeSuccess, model.StatusSuccess, &out.Success},
		{OutcomeFailure, model.StatusFailed, &out.Failure},
		{OutcomeCancel, model.StatusFailed, &out.Cancel},
	} {
		required := []queryField{{"status", string(o.status)}, {"intentId", intent.ID}}
		u, ok := fitURL(base+"/"+o.outcome, required, optional)
		if !ok {
			return adapter.CallbackURLs{}, domain.NewValidationError(domain.CodeCallbackURLTooLong, "callback url exceeds 1000 characters")
		}
		*o.dst = u
	}
	return out, nil
}

func fitURL(path string, required, optional []queryField) (string, bool) {
	for n := len(optional); n >= 0; n-- {
		u := path + "?" + encodeQuery(required, optional[:n])
		if len(u) <= MaxCallbackURLLen {
			return u, true
		}
	}
	return "", false
}

func encodeQuery(groups ...[]queryField) string {
	var b strings.Builder
	for _, g := range groups {
		for _, f := range g {
			if f.value == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(f.key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(f.value))
		}
	}
	return b.String()
}
