// Package cipher provides the symmetric envelope used to protect secret
// RobotEnvBinding values at rest (spec §4 Cipher). The key lives only in
// process memory (spec §5 "Cipher keys are process-local and never
// persisted") and is never logged.
package cipher

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const keySize = 32

// Envelope encrypts and decrypts individual env values with a single
// process-local key, using NaCl secretbox (XSalsa20-Poly1305): each
// ciphertext carries its own random nonce, so callers never manage nonces
// themselves.
type Envelope struct {
	key [keySize]byte
}

// New builds an Envelope from ENCRYPTION_KEY, which must decode from
// base64 to exactly 32 bytes. Fails fast (apperr.Fatal territory in the
// caller) rather than silently truncating or padding a bad key.
func New(base64Key string) (*Envelope, error) {
	if base64Key == "" {
		return nil, errors.New("cipher: ENCRYPTION_KEY is not configured")
	}
	raw, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("cipher: ENCRYPTION_KEY must be valid base64: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("cipher: ENCRYPTION_KEY must decode to %d bytes, got %d", keySize, len(raw))
	}
	e := &Envelope{}
	copy(e.key[:], raw)
	return e, nil
}

// Encrypt returns a base64 ciphertext embedding a fresh random nonce.
func (e *Envelope) Encrypt(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("cipher: generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &e.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Returns an error if the ciphertext is
// malformed or the authentication tag does not verify.
func (e *Envelope) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("cipher: invalid ciphertext encoding: %w", err)
	}
	if len(raw) < 24 {
		return "", errors.New("cipher: ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &e.key)
	if !ok {
		return "", errors.New("cipher: decryption failed, wrong key or corrupted value")
	}
	return string(plain), nil
}
