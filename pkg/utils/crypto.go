package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

func gcmFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("bad encryption key: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with AES-GCM and returns base64(nonce || ciphertext).
// Used for platform credentials at rest.
func Encrypt(plaintext, key []byte) (string, error) {
	aead, err := gcmFor(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt with the same key.
func Decrypt(encrypted string, key []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("malformed ciphertext: %w", err)
	}

	aead, err := gcmFor(key)
	if err != nil {
		return "", err
	}

	if len(data) < aead.NonceSize() {
		return "", fmt.Errorf("malformed ciphertext: shorter than nonce")
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}

	return string(plaintext), nil
}
