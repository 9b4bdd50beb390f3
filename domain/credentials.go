package domain

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealCredential encrypts plaintext API key material with a reversible
// AEAD cipher (spec.md §3 Account invariant: "API keys are stored
// encrypted with a reversible cipher"). key must be exactly
// chacha20poly1305.KeySize (32) bytes.
func SealCredential(key []byte, plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: new aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("credentials: read nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// OpenCredential decrypts a value produced by SealCredential. A failure
// here is the trigger for the spec.md §3 invariant "a decrypt failure
// disables trading on that account" — callers must flip Account.IsActive
// to false and log at error level, never retry with a different key.
func OpenCredential(key []byte, ciphertext []byte) (string, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("credentials: new aead: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return "", fmt.Errorf("credentials: ciphertext too short")
	}
	nonce, body := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("credentials: decrypt failed: %w", err)
	}
	return string(plaintext), nil
}
