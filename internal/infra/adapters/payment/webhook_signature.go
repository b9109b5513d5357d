package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"coupon-payments/internal/domain/model"
)

// SignCardWebhook computes the vault's integrity hash:
// hex(HMAC-SHA256(secret, customerId+customerCardId+operationType+updateDate)).
func SignCardWebhook(secret string, p model.CardWebhookPayload) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(p.CustomerID + p.CustomerCardID + p.OperationType + p.UpdateDate))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCardWebhook compares the payload's hash in constant time.
func VerifyCardWebhook(secret string, p model.CardWebhookPayload) bool {
	if secret == "" || p.IntegrityHash == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(p.IntegrityHash))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(SignCardWebhook(secret, p))
	return hmac.Equal(got, want)
}
