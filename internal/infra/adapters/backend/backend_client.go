package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"coupon-payments/internal/config"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var (
	_ adapter.Committer      = (*Client)(nil)
	_ adapter.DiscountPolicy = (*Client)(nil)
)

// Client talks to the business backend that owns subscriptions and users.
type Client struct {
	base   string
	apiKey string
	client *http.Client
	log    *zerolog.Logger
}

func NewClient(cfg config.BackendConfig, logger *zerolog.Logger) *Client {
	l := logger.With().Str("component", "backend").Logger()
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    &l,
	}
}

type commitRequest struct {
	IntentID string      `json:"intentId"`
	UserID   string      `json:"userId"`
	PlanID   string      `json:"planId"`
	CardID   string      `json:"cardId,omitempty"`
	Provider string      `json:"providerKind"`
	Amount   model.Money `json:"amount"`
}

// CommitPurchase finalizes the plan. The intent id doubles as the idempotency key.
func (c *Client) CommitPurchase(ctx context.Context, intent *model.PurchaseIntent) error {
	body, err := json.Marshal(commitRequest{
		IntentID: intent.ID,
		UserID:   intent.UserID,
		PlanID:   intent.PlanID,
		CardID:   intent.CardID,
		Provider: string(intent.Provider),
		Amount:   intent.Amount,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/subscriptions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", intent.ID)
	_, err = c.do(req, nil)
	return err
}

type priceResponse struct {
	Discounted bool         `json:"discounted"`
	Amount     *model.Money `json:"amount"`
}

func (c *Client) LinkedAccountPrice(ctx context.Context, userID, planID string, list model.Money) (*model.Money, error) {
	q := url.Values{}
	q.Set("planId", planID)
	q.Set("currencyCode", list.Currency)
	q.Set("value", fmt.Sprint(list.Value))
	u := c.base + "/v1/users/" + url.PathEscape(userID) + "/linked-account-price?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var out priceResponse
	if _, err := c.do(req, &out); err != nil {
		return nil, err
	}
	if !out.Discounted || out.Amount == nil {
		return nil, nil
	}
	return out.Amount, nil
}

func (c *Client) do(req *http.Request, out any) (int, error) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("backend %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	// 409: the intent was already committed under the same idempotency key.
	if resp.StatusCode == http.StatusConflict && req.Method == http.MethodPost {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().Int("status", resp.StatusCode).Str("path", req.URL.Path).Msg("backend call rejected")
		return resp.StatusCode, fmt.Errorf("backend %s %s: http %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("backend decode: %w", err)
		}
	}
	return resp.StatusCode, nil
}
