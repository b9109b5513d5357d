package payment

import (
	"context"
	"net/http"
	"time"

	"coupon-payments/internal/config"
	"coupon-payments/internal/domain"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var (
	_ adapter.ProviderAdapter      = (*CardRedirect)(nil)
	_ adapter.ReturnCodeTranslator = (*CardRedirect)(nil)
	_ adapter.WebhookVerifier      = (*CardRedirect)(nil)
)

// CardRedirect registers a card-on-file with the card vault. The browser is
// sent to the vault's hosted form by POST; the outcome arrives on the return
// URL (as a code) and authoritatively via webhook.
type CardRedirect struct {
	shopID        string
	webhookSecret string
	api           *apiClient
}

func NewCardRedirect(cfg config.ProviderConfig, timeout time.Duration, logger *zerolog.Logger) *CardRedirect {
	return &CardRedirect{
		shopID:        cfg.MerchantID,
		webhookSecret: cfg.WebhookSecret,
		api: newAPIClient(cfg.BaseURL, model.ProviderCardRedirect, timeout, map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
		}, logger),
	}
}

func (c *CardRedirect) Kind() model.ProviderKind { return model.ProviderCardRedirect }

type cardRegistrationRequest struct {
	ShopID     string `json:"shopId"`
	OrderID    string `json:"orderId"`
	SuccessURL string `json:"successUrl"`
	FailureURL string `json:"failureUrl"`
	CancelURL  string `json:"cancelUrl"`
}

type cardRegistrationResponse struct {
	CustomerID  string `json:"customerId"`
	RedirectURL string `json:"redirectUrl"`
}

func (c *CardRedirect) Initiate(ctx context.Context, intent *model.PurchaseIntent, urls adapter.CallbackURLs) adapter.InitiationResult {
	var out cardRegistrationResponse
	err := c.api.do(ctx, "register", http.MethodPost, "/v1/customers/registrations", nil, cardRegistrationRequest{
		ShopID:     c.shopID,
		OrderID:    intent.ID,
		SuccessURL: urls.Success,
		FailureURL: urls.Failure,
		CancelURL:  urls.Cancel,
	}, &out)
	if err != nil {
		return failed(err)
	}
	if out.CustomerID == "" || out.RedirectURL == "" {
		return failed(domain.NewDeclineError(domain.CodeProviderError, "registration response is missing customerId or redirectUrl"))
	}
	return adapter.InitiationResult{
		Status:             model.StatusPending,
		RedirectTarget:     out.RedirectURL,
		Method:             http.MethodPost,
		ProviderCustomerID: out.CustomerID,
	}
}

func (c *CardRedirect) TranslateReturnCode(code string) string { return CardReturnCode(code) }

func (c *CardRedirect) VerifyCardWebhook(p model.CardWebhookPayload) bool {
	return VerifyCardWebhook(c.webhookSecret, p)
}

// CardReturnCode normalizes the vault's return-URL error code.
func CardReturnCode(code string) string {
	switch code {
	case "E01":
		return domain.CodeMissingRequiredField
	case "E02":
		return domain.CodeMalformedInput
	case "E03":
		return domain.CodeFieldTooLong
	case "E04":
		return domain.CodeCardRejected
	case "E90":
		return domain.CodeCancelled
	default:
		return domain.CodeDeclined
	}
}
