// Package licensetoken signs the short-lived session tokens and the longer offline
// tokens handed to desktop clients after a successful validate or heartbeat.
package licensetoken

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/pkg/config"
	"github.com/angelmondragon/licensing-backend/pkg/security"
)

const (
	TypeSession = "session"
	TypeOffline = "offline"

	defaultSessionTTL = 15 * time.Minute
	minOfflineLeft    = 72 * time.Hour
	signingKeyLength  = 32
)

var signingMethod = jwt.SigningMethodHS256

// Subject identifies the license/device pair a token is issued to.
type Subject struct {
	LicenseID    uuid.UUID
	ActivationID uuid.UUID
	ProductCode  string
	Fingerprint  string
	Entitlements []string
}

// Claims is shared by session and offline tokens; Type tells them apart.
type Claims struct {
	Type         string   `json:"typ"`
	Fingerprint  string   `json:"dfp"`
	Entitlements []string `json:"ent"`
	ActivationID string   `json:"aid,omitempty"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies license tokens with keys derived from one master secret.
type Issuer struct {
	issuer     string
	keyID      string
	sessionTTL time.Duration
	sessionKey []byte
	offlineKey []byte
}

func NewIssuer(cfg config.LicensingConfig) (*Issuer, error) {
	issuer := strings.TrimSpace(cfg.TokenIssuer)
	if issuer == "" {
		return nil, fmt.Errorf("token issuer is required")
	}
	sessionKey, err := security.DeriveKey(cfg.SigningSecret, security.PurposeSessionToken, signingKeyLength)
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}
	offlineKey, err := security.DeriveKey(cfg.SigningSecret, security.PurposeOfflineToken, signingKeyLength)
	if err != nil {
		return nil, fmt.Errorf("offline key: %w", err)
	}
	ttl := cfg.SessionTokenTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Issuer{
		issuer:     issuer,
		keyID:      strings.TrimSpace(cfg.SigningKeyID),
		sessionTTL: ttl,
		sessionKey: sessionKey,
		offlineKey: offlineKey,
	}, nil
}

// SessionTTL reports how long issued session tokens stay valid.
func (i *Issuer) SessionTTL() time.Duration {
	return i.sessionTTL
}

// IssueSession signs a session token valid for the configured TTL.
func (i *Issuer) IssueSession(now time.Time, subject Subject) (string, time.Time, error) {
	expiresAt := now.Add(i.sessionTTL)
	token, err := i.sign(i.sessionKey, TypeSession, now, expiresAt, subject)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// IssueOffline signs an offline token expiring at expiresAt.
func (i *Issuer) IssueOffline(now, expiresAt time.Time, subject Subject) (string, error) {
	if !expiresAt.After(now) {
		return "", fmt.Errorf("offline token expiry must be in the future")
	}
	return i.sign(i.offlineKey, TypeOffline, now, expiresAt, subject)
}

func (i *Issuer) sign(key []byte, typ string, now, expiresAt time.Time, subject Subject) (string, error) {
	if subject.LicenseID == uuid.Nil {
		return "", fmt.Errorf("license id is required")
	}
	if strings.TrimSpace(subject.ProductCode) == "" {
		return "", fmt.Errorf("product code is required")
	}
	if strings.TrimSpace(subject.Fingerprint) == "" {
		return "", fmt.Errorf("device fingerprint is required")
	}
	entitlements := subject.Entitlements
	if entitlements == nil {
		entitlements = []string{}
	}
	claims := Claims{
		Type:         typ,
		Fingerprint:  subject.Fingerprint,
		Entitlements: entitlements,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject.LicenseID.String(),
			Audience:  jwt.ClaimStrings{subject.ProductCode},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if subject.ActivationID != uuid.Nil {
		claims.ActivationID = subject.ActivationID.String()
	}
	token := jwt.NewWithClaims(signingMethod, claims)
	if i.keyID != "" {
		token.Header["kid"] = i.keyID
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// ParseSession verifies a session token for the given product audience.
func (i *Issuer) ParseSession(raw, productCode string, now time.Time) (*Claims, error) {
	return i.parse(raw, i.sessionKey, TypeSession, productCode, now)
}

// ParseOffline verifies an offline token for the given product audience.
func (i *Issuer) ParseOffline(raw, productCode string, now time.Time) (*Claims, error) {
	return i.parse(raw, i.offlineKey, TypeOffline, productCode, now)
}

func (i *Issuer) parse(raw string, key []byte, typ, productCode string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != signingMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(productCode),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("expected %s token, got %q", typ, claims.Type)
	}
	return claims, nil
}

// OfflineExpiry computes when an offline token issued now should lapse: now plus the
// allowance, never past the end of the grace window. A zero result means no offline
// token may be issued.
func OfflineExpiry(now time.Time, allowOfflineDays int, graceEndsAt *time.Time) time.Time {
	if allowOfflineDays <= 0 {
		return time.Time{}
	}
	expiry := now.Add(time.Duration(allowOfflineDays) * 24 * time.Hour)
	if graceEndsAt != nil && graceEndsAt.Before(expiry) {
		expiry = *graceEndsAt
	}
	if !expiry.After(now) {
		return time.Time{}
	}
	return expiry
}

// NeedsOfflineRenewal reports whether the current offline token should be replaced:
// there is none, or less than half its nominal lifetime or three days remain.
func NeedsOfflineRenewal(now time.Time, current *time.Time, allowOfflineDays int) bool {
	if allowOfflineDays <= 0 {
		return false
	}
	if current == nil {
		return true
	}
	remaining := current.Sub(now)
	if remaining <= 0 {
		return true
	}
	lifetime := time.Duration(allowOfflineDays) * 24 * time.Hour
	return remaining < lifetime/2 || remaining < minOfflineLeft
}
