package redeem

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/angelmondragon/licensing-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/security"
)

const pepperLength = 32

var normalizedCode = regexp.MustCompile(`^[A-Z0-9]{8,64}$`)

// NormalizeCode folds user input to the canonical form that gets hashed:
// NFKC, uppercase, separators and whitespace removed.
func NormalizeCode(raw string) (string, error) {
	folded := strings.ToUpper(norm.NFKC.String(strings.TrimSpace(raw)))
	folded = strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
	if !normalizedCode.MatchString(folded) {
		return "", pkgerrors.New(pkgerrors.CodeRedeemCodeInvalid, "redeem code must be 8-64 letters or digits")
	}
	return folded, nil
}

// Hasher turns normalized codes into the stored lookup hash.
type Hasher struct {
	pepper []byte
}

// NewHasher uses the configured pepper, or derives one from the token signing secret.
func NewHasher(redeemCfg config.RedeemConfig, licensingCfg config.LicensingConfig) (*Hasher, error) {
	if pepper := strings.TrimSpace(redeemCfg.Pepper); pepper != "" {
		return &Hasher{pepper: []byte(pepper)}, nil
	}
	derived, err := security.DeriveKey(licensingCfg.SigningSecret, security.PurposeRedeemPepper, pepperLength)
	if err != nil {
		return nil, fmt.Errorf("derive redeem pepper: %w", err)
	}
	return &Hasher{pepper: derived}, nil
}

func (h *Hasher) Hash(normalized string) string {
	return security.HashWithPepper(h.pepper, normalized)
}

// displayCode groups a normalized code in fours for people to read.
func displayCode(normalized string) string {
	var b strings.Builder
	for i, r := range normalized {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}
