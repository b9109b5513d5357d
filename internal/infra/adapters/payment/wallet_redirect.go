package payment

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coupon-payments/internal/config"
	"coupon-payments/internal/domain"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var (
	_ adapter.ProviderAdapter = (*WalletRedirect)(nil)
	_ adapter.StatusChecker   = (*WalletRedirect)(nil)
)

// WalletRedirect sends the browser to the wallet's checkout and reports the
// status on the return URL. The return leg is verified with CheckStatus.
type WalletRedirect struct {
	merchantID string
	api        *apiClient
}

func NewWalletRedirect(cfg config.ProviderConfig, timeout time.Duration, logger *zerolog.Logger) *WalletRedirect {
	return &WalletRedirect{
		merchantID: cfg.MerchantID,
		api: newAPIClient(cfg.BaseURL, model.ProviderWalletRedirect, timeout, map[string]string{
			"X-Api-Key":     cfg.APIKey,
			"X-Merchant-Id": cfg.MerchantID,
		}, logger),
	}
}

func (w *WalletRedirect) Kind() model.ProviderKind { return model.ProviderWalletRedirect }

type walletPaymentRequest struct {
	MerchantID        string      `json:"merchantId"`
	MerchantPaymentID string      `json:"merchantPaymentId"`
	Amount            model.Money `json:"amount"`
	SuccessURL        string      `json:"successUrl"`
	FailureURL        string      `json:"failureUrl"`
	CancelURL         string      `json:"cancelUrl"`
}

type walletPaymentResponse struct {
	Status            string `json:"status"`
	TransactionID     string `json:"transactionId"`
	RedirectURL       string `json:"redirectUrl"`
	HTMLForm          string `json:"htmlForm"`
	Code              string `json:"code"`
	ResultDescription string `json:"resultDescription"`
}

func (w *WalletRedirect) Initiate(ctx context.Context, intent *model.PurchaseIntent, urls adapter.CallbackURLs) adapter.InitiationResult {
	if !isNumeric(intent.ID) {
		return failed(domain.NewValidationError(domain.CodeIntentIDNotNumeric, "wallet request id must be numeric"))
	}
	var out walletPaymentResponse
	err := w.api.do(ctx, "create", http.MethodPost, "/v1/payments", map[string]string{
		"Idempotency-Key": idempotencyKey(intent),
	}, walletPaymentRequest{
		MerchantID:        w.merchantID,
		MerchantPaymentID: intent.ID,
		Amount:            intent.Amount,
		SuccessURL:        urls.Success,
		FailureURL:        urls.Failure,
		CancelURL:         urls.Cancel,
	}, &out)
	if err != nil {
		return failed(err)
	}

	switch status := normalizeWalletStatus(out.Status); status {
	case model.StatusSuccess:
		return adapter.InitiationResult{Status: status, ProviderTransactionID: out.TransactionID}
	case model.StatusFailed:
		return failed(domain.NewDeclineError(out.Code, out.ResultDescription))
	}

	res := adapter.InitiationResult{Status: model.StatusPending, ProviderTransactionID: out.TransactionID}
	switch {
	case out.RedirectURL != "":
		res.RedirectTarget, res.Method = out.RedirectURL, http.MethodGet
	case out.HTMLForm != "":
		res.HTMLFragment = out.HTMLForm
	default:
		return failed(domain.NewDeclineError(domain.CodeProviderError, "payment response has neither redirectUrl nor htmlForm"))
	}
	return res
}

func (w *WalletRedirect) CheckStatus(ctx context.Context, providerTransactionID string) adapter.StatusResult {
	var out walletPaymentResponse
	if err := w.api.do(ctx, "status", http.MethodGet, "/v1/payments/"+url.PathEscape(providerTransactionID), nil, nil, &out); err != nil {
		return adapter.StatusResult{Code: domain.CodeOf(err), Err: err}
	}
	res := adapter.StatusResult{Status: normalizeWalletStatus(out.Status), ResultDescription: out.ResultDescription}
	if res.Status == model.StatusFailed {
		res.Code = out.Code
		if res.Code == "" {
			res.Code = domain.CodeDeclined
		}
	}
	return res
}

func normalizeWalletStatus(s string) model.TransactionStatus {
	switch strings.ToUpper(s) {
	case "SUCCESS", "COMPLETED":
		return model.StatusSuccess
	case "FAILED", "DECLINED", "CANCELLED", "CANCELED":
		return model.StatusFailed
	case "PROCESSING":
		return model.StatusProcessing
	default:
		return model.StatusPending
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
