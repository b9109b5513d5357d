package payment

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"coupon-payments/internal/config"
	"coupon-payments/internal/domain"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// MaxCallbackURLLen is the longest return URL WalletQR accepts.
const MaxCallbackURLLen = 1000

var (
	_ adapter.ProviderAdapter = (*WalletQR)(nil)
	_ adapter.StatusChecker   = (*WalletQR)(nil)
)

// WalletQR issues a dynamic QR code. The user completes the payment in the
// wallet app, so the only way to learn the outcome is to poll.
type WalletQR struct {
	merchantID string
	api        *apiClient
}

func NewWalletQR(cfg config.ProviderConfig, timeout time.Duration, logger *zerolog.Logger) *WalletQR {
	return &WalletQR{
		merchantID: cfg.MerchantID,
		api: newAPIClient(cfg.BaseURL, model.ProviderWalletQR, timeout, map[string]string{
			"Authorization":     "Bearer " + cfg.APIKey,
			"X-Assume-Merchant": cfg.MerchantID,
		}, logger),
	}
}

func (q *WalletQR) Kind() model.ProviderKind { return model.ProviderWalletQR }

type qrCodeRequest struct {
	MerchantPaymentID string      `json:"merchantPaymentId"`
	Amount            model.Money `json:"amount"`
	CodeType          string      `json:"codeType"`
	RedirectURL       string      `json:"redirectUrl"`
	FailureURL        string      `json:"failureUrl"`
	CancelURL         string      `json:"cancelUrl"`
	RedirectType      string      `json:"redirectType"`
	IsAuthorization   bool        `json:"isAuthorization"`
	UserAgent         string      `json:"userAgent,omitempty"`
}

type qrCodeResponse struct {
	Status   string `json:"status"`
	CodeID   string `json:"codeId"`
	URL      string `json:"url"`
	Deeplink string `json:"deeplink"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type qrTransactionResponse struct {
	Status            string `json:"status"`
	ResultDescription string `json:"resultDescription"`
	Code              string `json:"code"`
}

func (q *WalletQR) Initiate(ctx context.Context, intent *model.PurchaseIntent, urls adapter.CallbackURLs) adapter.InitiationResult {
	if utf8.RuneCountInString(intent.ID) > model.MaxIntentIDLen {
		return failed(domain.NewValidationError(domain.CodeIntentIDTooLong, "request id exceeds 20 characters"))
	}
	for _, u := range []string{urls.Success, urls.Failure, urls.Cancel} {
		if len(u) > MaxCallbackURLLen {
			return failed(domain.NewValidationError(domain.CodeCallbackURLTooLong, "callback url exceeds 1000 characters"))
		}
	}

	ua := adapter.UserAgent(ctx)
	var out qrCodeResponse
	err := q.api.do(ctx, "create", http.MethodPost, "/v2/codes", map[string]string{
		"Idempotency-Key": idempotencyKey(intent),
	}, qrCodeRequest{
		MerchantPaymentID: intent.ID,
		Amount:            intent.Amount,
		CodeType:          "ORDER_QR",
		RedirectURL:       urls.Success,
		FailureURL:        urls.Failure,
		CancelURL:         urls.Cancel,
		RedirectType:      "WEB_LINK",
		UserAgent:         ua,
	}, &out)
	if err != nil {
		return failed(err)
	}

	switch status := normalizeQRStatus(out.Status); status {
	case model.StatusSuccess:
		return adapter.InitiationResult{Status: status, ProviderTransactionID: out.CodeID}
	case model.StatusFailed:
		return failed(domain.NewDeclineError(out.Code, out.Message))
	}
	if out.CodeID == "" || (out.URL == "" && out.Deeplink == "") {
		return failed(domain.NewDeclineError(domain.CodeProviderError, "code response is missing codeId or url"))
	}
	target := out.URL
	if isMobile(ua) && out.Deeplink != "" {
		target = out.Deeplink
	}
	return adapter.InitiationResult{
		Status:                model.StatusRequiresAction,
		QRTarget:              target,
		ProviderTransactionID: out.CodeID,
	}
}

func (q *WalletQR) CheckStatus(ctx context.Context, providerTransactionID string) adapter.StatusResult {
	var out qrTransactionResponse
	if err := q.api.do(ctx, "status", http.MethodGet, "/v2/transactions/"+url.PathEscape(providerTransactionID), nil, nil, &out); err != nil {
		return adapter.StatusResult{Code: domain.CodeOf(err), Err: err}
	}
	res := adapter.StatusResult{Status: normalizeQRStatus(out.Status), ResultDescription: out.ResultDescription}
	if res.Status == model.StatusFailed {
		res.Code = out.Code
		if res.Code == "" {
			res.Code = domain.CodeDeclined
		}
	}
	return res
}

func normalizeQRStatus(s string) model.TransactionStatus {
	switch strings.ToUpper(s) {
	case "CREATED":
		return model.StatusRequiresAction
	case "AUTHORIZED", "PROCESSING":
		return model.StatusProcessing
	case "COMPLETED":
		return model.StatusSuccess
	case "FAILED", "CANCELED", "EXPIRED":
		return model.StatusFailed
	default:
		return model.StatusPending
	}
}

func isMobile(ua string) bool {
	ua = strings.ToLower(ua)
	for _, m := range []string{"iphone", "ipad", "android", "mobile"} {
		if strings.Contains(ua, m) {
			return true
		}
	}
	return false
}
