package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coupon-payments/internal/domain/ports/repository"
	"coupon-payments/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ repository.SessionStore = (*Store)(nil)

var (
	ErrInvalidValueType = errors.New("session value does not match the field type")
	ErrUnknownField     = errors.New("unknown session field")
)

// Codec seals the whole record into one opaque token.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

// Carrier transports the token; the client owns it, the server keeps no copy.
type Carrier interface {
	Read() (string, bool)
	Write(token string, ttl time.Duration)
	Delete()
}

// Store is a keyed partial-update view over a single encrypted record.
// Every mutation is a full read-modify-write of the record, so two clients
// sharing one carrier race with last-write-wins semantics.
type Store struct {
	codec   Codec
	carrier Carrier
	schema  Schema
	ttl     time.Duration
	log     *zerolog.Logger
}

func NewStore(codec Codec, carrier Carrier, schema Schema, ttl time.Duration, logger *zerolog.Logger) *Store {
	if schema == nil {
		schema = DefaultSchema()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{codec: codec, carrier: carrier, schema: schema, ttl: ttl, log: logger}
}

// load returns the current record; anything unreadable is an empty record.
func (s *Store) load() map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	tok, ok := s.carrier.Read()
	if !ok || tok == "" {
		return fields
	}
	pt, err := s.codec.Decrypt(tok)
	if err != nil {
		metrics.IncSessionDecryptFailure()
		s.log.Debug().Msg("session record unreadable; treating as absent")
		return fields
	}
	if err := json.Unmarshal([]byte(pt), &fields); err != nil {
		metrics.IncSessionDecryptFailure()
		s.log.Debug().Msg("session record is not a field map; treating as absent")
		return map[string]json.RawMessage{}
	}
	return fields
}

func (s *Store) save(fields map[string]json.RawMessage) error {
	if len(fields) == 0 {
		s.carrier.Delete()
		return nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	tok, err := s.codec.Encrypt(string(b))
	if err != nil {
		return fmt.Errorf("encrypt session: %w", err)
	}
	s.carrier.Write(tok, s.ttl)
	return nil
}

// Get decodes one field into out. It reports false when the field is absent,
// the record is unreadable, or the stored value does not decode into out.
func (s *Store) Get(key string, out any) bool {
	raw, ok := s.load()[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// Set upserts one field after checking it against the schema entry for key.
func (s *Store) Set(key string, value any) error {
	kind, ok := s.schema[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	raw, err := json.Marshal(value)
	if err != nil || !kind.matches(raw) {
		return fmt.Errorf("%w: %s", ErrInvalidValueType, key)
	}
	fields := s.load()
	fields[key] = raw
	return s.save(fields)
}

// Remove deletes one field; removing the last one deletes the carrier.
// The remaining record is always re-issued, so the TTL slides even when key
// was already absent.
func (s *Store) Remove(key string) error {
	fields := s.load()
	delete(fields, key)
	return s.save(fields)
}

func (s *Store) Clear() { s.carrier.Delete() }

// Value is the typed form of Get.
func Value[T any](s *Store, key string) (T, bool) {
	var v T
	ok := s.Get(key, &v)
	return v, ok
}
