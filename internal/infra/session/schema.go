package session

import (
	"bytes"
	"encoding/json"

	"coupon-payments/internal/domain/ports/repository"
)

// FieldKind is the JSON shape a session field must have.
type FieldKind int

const (
	FieldString FieldKind = iota + 1
	FieldObject
	FieldNumber
	FieldBool
)

// Schema maps every allowed session key to its shape. Keys outside the schema are rejected.
type Schema map[string]FieldKind

// DefaultSchema covers the registration and payment flows.
func DefaultSchema() Schema {
	return Schema{
		repository.SessionUserEmail:        FieldString,
		repository.SessionRegisterFormData: FieldObject,
		repository.SessionReferrerUserID:   FieldString,
		repository.SessionPaymentIntent:    FieldObject,
	}
}

func (k FieldKind) matches(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch k {
	case FieldString:
		return raw[0] == '"'
	case FieldObject:
		return raw[0] == '{'
	case FieldNumber:
		return raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')
	case FieldBool:
		return bytes.Equal(raw, []byte("true")) || bytes.Equal(raw, []byte("false"))
	}
	return false
}
