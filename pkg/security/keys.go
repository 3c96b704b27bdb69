package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Key purposes fed to HKDF as the info parameter. Changing one rotates every key derived for it.
const (
	PurposeSessionToken = "licensing/session-token/v1"
	PurposeOfflineToken = "licensing/offline-token/v1"
	PurposeRedeemPepper = "licensing/redeem-pepper/v1"
)

const minSecretLen = 16

// DeriveKey expands a master secret into a purpose-bound key of the requested length.
func DeriveKey(secret, purpose string, length int) ([]byte, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("secret must be at least %d bytes", minSecretLen)
	}
	if strings.TrimSpace(purpose) == "" {
		return nil, fmt.Errorf("key purpose is required")
	}
	if length <= 0 || length > 255*sha256.Size {
		return nil, fmt.Errorf("invalid key length %d", length)
	}
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// SignHMAC returns the hex HMAC-SHA256 of body under secret.
func SignHMAC(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC compares a hex signature against the expected HMAC in constant time.
func VerifyHMAC(secret, body []byte, signature string) bool {
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// HashWithPepper returns the hex SHA-256 of pepper followed by value.
func HashWithPepper(pepper []byte, value string) string {
	h := sha256.New()
	h.Write(pepper)
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}
