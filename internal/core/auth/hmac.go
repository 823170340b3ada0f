package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	keyPrefix      = "mp"
	keyVersion     = "v1"
	secretIDLength = 32 // hex chars
	randomLength   = 64 // hex chars, 256 bits
)

// ParseAPIKey extracts secret_id and random_data from API key format.
// Format: mp-v1-<secret_id>-<random_data> (102 chars total).
// Returns ErrInvalidKeyFormat if format doesn't match.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 || parts[0] != keyPrefix || parts[1] != keyVersion {
		return "", "", ErrInvalidKeyFormat
	}

	secretID = parts[2]
	randomData = parts[3]
	if len(secretID) != secretIDLength || len(randomData) != randomLength {
		return "", "", ErrInvalidKeyFormat
	}
	if !isLowerHex(secretID + randomData) {
		return "", "", ErrInvalidKeyFormat
	}

	return secretID, randomData, nil
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// ComputeHMAC computes HMAC-SHA256 signature of API key using secret.
func ComputeHMAC(secret []byte, apiKey string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

// KeyHash is the stored form of an API key: hex HMAC-SHA256 under secret.
func KeyHash(secret []byte, apiKey string) string {
	return hex.EncodeToString(ComputeHMAC(secret, apiKey))
}

// VerifyHMAC verifies HMAC signature using constant-time comparison.
func VerifyHMAC(expectedHash, computedHash []byte) bool {
	return hmac.Equal(expectedHash, computedHash)
}

// FormatAPIKey constructs API key from components.
func FormatAPIKey(secretID, randomData string) string {
	return fmt.Sprintf("%s-%s-%s-%s", keyPrefix, keyVersion, secretID, randomData)
}

// GenerateAPIKey returns a fresh key bound to secretID.
func GenerateAPIKey(secretID string) (string, error) {
	if len(secretID) != secretIDLength || !isLowerHex(secretID) {
		return "", ErrInvalidKeyFormat
	}
	buf := make([]byte, randomLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return FormatAPIKey(secretID, hex.EncodeToString(buf)), nil
}
