package licensetoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/licensing-backend/pkg/config"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(config.LicensingConfig{
		SigningSecret:   "0123456789abcdef0123456789abcdef",
		TokenIssuer:     "licensing-test",
		SigningKeyID:    "k1",
		SessionTokenTTL: 15 * time.Minute,
	})
	require.NoError(t, err)
	return issuer
}

func testSubject() Subject {
	return Subject{
		LicenseID:    uuid.New(),
		ActivationID: uuid.New(),
		ProductCode:  "studio",
		Fingerprint:  "fp-1",
		Entitlements: []string{"export", "pro"},
	}
}

func TestIssueAndParseSession(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	subject := testSubject()

	raw, expiresAt, err := issuer.IssueSession(now, subject)
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), expiresAt)

	claims, err := issuer.ParseSession(raw, "studio", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, TypeSession, claims.Type)
	assert.Equal(t, subject.LicenseID.String(), claims.Subject)
	assert.Equal(t, "fp-1", claims.Fingerprint)
	assert.Equal(t, []string{"export", "pro"}, claims.Entitlements)
	assert.Equal(t, subject.ActivationID.String(), claims.ActivationID)

	token, _, err := jwt.NewParser().ParseUnverified(raw, &Claims{})
	require.NoError(t, err)
	assert.Equal(t, "k1", token.Header["kid"])
}

func TestParseSessionRejectsWrongAudienceExpiryAndType(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	subject := testSubject()

	raw, _, err := issuer.IssueSession(now, subject)
	require.NoError(t, err)

	_, err = issuer.ParseSession(raw, "other-product", now)
	assert.Error(t, err)

	_, err = issuer.ParseSession(raw, "studio", now.Add(16*time.Minute))
	assert.Error(t, err)

	offline, err := issuer.IssueOffline(now, now.Add(48*time.Hour), subject)
	require.NoError(t, err)
	_, err = issuer.ParseSession(offline, "studio", now)
	assert.Error(t, err, "offline token must not verify as a session token")

	claims, err := issuer.ParseOffline(offline, "studio", now.Add(47*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, TypeOffline, claims.Type)
}

func TestIssueRejectsIncompleteSubject(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Now()
	subject := testSubject()
	subject.Fingerprint = ""
	_, _, err := issuer.IssueSession(now, subject)
	assert.Error(t, err)

	_, err = issuer.IssueOffline(now, now.Add(-time.Hour), testSubject())
	assert.Error(t, err)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer(config.LicensingConfig{TokenIssuer: "x", SigningSecret: "short"})
	assert.Error(t, err)
}

func TestOfflineExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	graceEnd := now.Add(5 * 24 * time.Hour)

	assert.Equal(t, now.Add(14*24*time.Hour), OfflineExpiry(now, 14, nil))
	assert.Equal(t, graceEnd, OfflineExpiry(now, 14, &graceEnd))
	assert.True(t, OfflineExpiry(now, 0, nil).IsZero())

	past := now.Add(-time.Hour)
	assert.True(t, OfflineExpiry(now, 14, &past).IsZero())
}

func TestNeedsOfflineRenewal(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	cases := []struct {
		name    string
		current *time.Time
		days    int
		want    bool
	}{
		{"no token yet", nil, 14, true},
		{"offline disabled", nil, 0, false},
		{"fresh", at(13 * 24 * time.Hour), 14, false},
		{"under half", at(6 * 24 * time.Hour), 14, true},
		{"under three days", at(60 * time.Hour), 4, true},
		{"short allowance above threshold", at(80 * time.Hour), 4, false},
		{"already expired", at(-time.Minute), 14, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NeedsOfflineRenewal(now, tc.current, tc.days))
		})
	}
}
