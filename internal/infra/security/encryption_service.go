// File: internal/infra/security/encryption_service.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize = 16
	ivSize   = 16
	tagSize  = 16
	keySize  = 32 // AES-256

	DefaultKDFIterations = 100_000
)

// ErrDecrypt is returned for every decrypt failure: bad hex, short input or a
// tag mismatch all look the same to the caller.
var ErrDecrypt = errors.New("session token cannot be decrypted")

// EncryptionService seals small payloads into self-contained tokens.
// Token layout: hex(salt || iv || authTag || ciphertext). The AES-256-GCM key is
// derived per token with PBKDF2-SHA256 over the secret and the token's own salt.
type EncryptionService struct {
	secret     []byte
	iterations int
	rand       io.Reader
}

// NewEncryptionService constructs the codec. iterations <= 0 selects the default.
func NewEncryptionService(secret string, iterations int) (*EncryptionService, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("session secret must be at least 16 bytes; got %d", len(secret))
	}
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	return &EncryptionService{secret: []byte(secret), iterations: iterations, rand: rand.Reader}, nil
}

func (e *EncryptionService) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.secret, salt, e.iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

// Encrypt draws a fresh salt and iv, so equal plaintexts never share a token.
func (e *EncryptionService) Encrypt(plaintext string) (string, error) {
	head := make([]byte, saltSize+ivSize)
	if _, err := io.ReadFull(e.rand, head); err != nil {
		return "", fmt.Errorf("rand salt/iv: %w", err)
	}
	salt, iv := head[:saltSize], head[saltSize:]
	gcm, err := e.aead(salt)
	if err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, len(head)+tagSize+len(ct))
	out = append(out, head...)
	out = append(out, tag...)
	out = append(out, ct...)
	return hex.EncodeToString(out), nil
}

// Decrypt accepts output of Encrypt and returns the original plaintext or ErrDecrypt.
func (e *EncryptionService) Decrypt(token string) (string, error) {
	data, err := hex.DecodeString(token)
	if err != nil || len(data) < saltSize+ivSize+tagSize {
		return "", ErrDecrypt
	}
	salt := data[:saltSize]
	iv := data[saltSize : saltSize+ivSize]
	tag := data[saltSize+ivSize : saltSize+ivSize+tagSize]
	ct := data[saltSize+ivSize+tagSize:]

	gcm, err := e.aead(salt)
	if err != nil {
		return "", ErrDecrypt
	}
	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	pt, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(pt), nil
}
