package utils

import (
	"crypto/rand"
	"encoding/base64"
)

const apiKeyPrefix = "rls_"

// GenerateAPIKey returns a new opaque API key. The prefix makes keys
// recognizable in logs and support tickets without revealing anything.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
