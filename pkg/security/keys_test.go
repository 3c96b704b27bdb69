package security_test

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/angelmondragon/licensing-backend/pkg/security"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestDeriveKeyIsDeterministicPerPurpose(t *testing.T) {
	a, err := security.DeriveKey(testSecret, security.PurposeSessionToken, 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	b, err := security.DeriveKey(testSecret, security.PurposeSessionToken, 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical keys for identical inputs")
	}

	other, err := security.DeriveKey(testSecret, security.PurposeOfflineToken, 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if bytes.Equal(a, other) {
		t.Fatal("expected different purposes to yield different keys")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(a))
	}
}

func TestDeriveKeyRejectsBadInput(t *testing.T) {
	if _, err := security.DeriveKey("short", security.PurposeSessionToken, 32); err == nil {
		t.Fatal("expected short secret error")
	}
	if _, err := security.DeriveKey(testSecret, " ", 32); err == nil {
		t.Fatal("expected missing purpose error")
	}
	if _, err := security.DeriveKey(testSecret, security.PurposeRedeemPepper, 0); err == nil {
		t.Fatal("expected invalid length error")
	}
}

func TestVerifyHMAC(t *testing.T) {
	secret := []byte("webhook-secret")
	body := []byte(`{"orderId":"abc","status":"PAID"}`)
	sig := security.SignHMAC(secret, body)

	if !security.VerifyHMAC(secret, body, sig) {
		t.Fatal("expected signature to verify")
	}
	if security.VerifyHMAC(secret, append(body, ' '), sig) {
		t.Fatal("expected tampered body to fail")
	}
	if security.VerifyHMAC([]byte("other"), body, sig) {
		t.Fatal("expected wrong secret to fail")
	}
	if security.VerifyHMAC(secret, body, "not-hex") {
		t.Fatal("expected malformed signature to fail")
	}
}

func TestHashWithPepper(t *testing.T) {
	h1 := security.HashWithPepper([]byte("pepper"), "ABCD2345EFGH6789")
	h2 := security.HashWithPepper([]byte("pepper"), "ABCD2345EFGH6789")
	h3 := security.HashWithPepper([]byte("other"), "ABCD2345EFGH6789")
	if h1 != h2 {
		t.Fatal("expected stable hash")
	}
	if h1 == h3 {
		t.Fatal("expected pepper to change the hash")
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestGroupedCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-HJKMNP-Z2-9]{4}(-[A-HJKMNP-Z2-9]{4}){3}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := security.GroupedCode(security.UnambiguousAlphabet, 4, 4)
		if err != nil {
			t.Fatalf("GroupedCode: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("unexpected code shape %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 50 {
		t.Fatalf("expected distinct codes, got %d unique", len(seen))
	}
	if _, err := security.GroupedCode("", 4, 4); err == nil {
		t.Fatalf("expected error for empty alphabet")
	}
}
