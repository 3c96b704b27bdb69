package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// UnambiguousAlphabet leaves out I, L, O, 0 and 1.
const UnambiguousAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GroupedCode draws groups*size characters from alphabet with crypto/rand and
// joins the groups with hyphens.
func GroupedCode(alphabet string, groups, size int) (string, error) {
	if alphabet == "" || groups <= 0 || size <= 0 {
		return "", fmt.Errorf("invalid code shape")
	}
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(groups*size + groups - 1)
	for g := 0; g < groups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < size; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("read random: %w", err)
			}
			b.WriteByte(alphabet[n.Int64()])
		}
	}
	return b.String(), nil
}
