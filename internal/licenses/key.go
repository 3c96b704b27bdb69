package licenses

import (
	"strings"

	"github.com/angelmondragon/licensing-backend/pkg/security"
)

const maxKeyAttempts = 5

// GenerateKey returns a XXXX-XXXX-XXXX-XXXX license key.
func GenerateKey() (string, error) {
	return security.GroupedCode(security.UnambiguousAlphabet, 4, 4)
}

// NormalizeKey uppercases and trims user-supplied keys before lookup.
func NormalizeKey(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
