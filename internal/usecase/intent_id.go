package usecase

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"coupon-payments/internal/domain/model"
)

// NewIntentID returns a numeric id that satisfies every provider: the Unix
// millisecond timestamp followed by random digits, model.MaxIntentIDLen long.
func NewIntentID(now time.Time) string {
	id := strconv.FormatInt(now.UnixMilli(), 10)
	for len(id) < model.MaxIntentIDLen {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			d = big.NewInt(now.UnixNano() % 10)
		}
		id += d.String()
	}
	return id[:model.MaxIntentIDLen]
}
