package square

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/licensing-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

func TestNewClientValidatesConfig(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "square-test", Output: io.Discard})
	ctx := context.Background()

	_, err := NewClient(ctx, config.SquareConfig{AccessToken: "tok", LocationID: "loc"}, nil)
	require.Error(t, err)

	_, err = NewClient(ctx, config.SquareConfig{AccessToken: "tok", LocationID: "loc", Env: "staging"}, logg)
	require.ErrorContains(t, err, "environment")

	_, err = NewClient(ctx, config.SquareConfig{LocationID: "loc"}, logg)
	require.ErrorContains(t, err, "access token")

	_, err = NewClient(ctx, config.SquareConfig{AccessToken: "tok"}, logg)
	require.ErrorContains(t, err, "location")

	c, err := NewClient(ctx, config.SquareConfig{AccessToken: "tok", LocationID: " loc-1 ", Env: "Production", Currency: "krw"}, logg)
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment())
	assert.Equal(t, "loc-1", c.LocationID())
	assert.Equal(t, "KRW", c.currencyFor(""))
	assert.Equal(t, "USD", c.currencyFor(" usd "))
}

func TestIdempotencyKeyPrefersProvided(t *testing.T) {
	assert.Equal(t, "order-42", idempotencyKey("payment", " order-42 "))
	generated := idempotencyKey("payment", "")
	assert.True(t, strings.HasPrefix(generated, "payment-"), generated)
	assert.NotEqual(t, generated, idempotencyKey("payment", ""))
}

func TestRedactMasksSensitiveKeys(t *testing.T) {
	out := redact(map[string]any{"payment_token": "abc", "Email": "a@b.c", "status": "ok"})
	assert.Equal(t, "[REDACTED]", out["payment_token"])
	assert.Equal(t, "[REDACTED]", out["Email"])
	assert.Equal(t, "ok", out["status"])
}

func TestCodeForStatus(t *testing.T) {
	tests := map[int]pkgerrors.Code{
		http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
		http.StatusForbidden:           pkgerrors.CodeForbidden,
		http.StatusNotFound:            pkgerrors.CodeNotFound,
		http.StatusConflict:            pkgerrors.CodeConflict,
		http.StatusPaymentRequired:     pkgerrors.CodeDependency,
		http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
		http.StatusBadRequest:          pkgerrors.CodeValidation,
		http.StatusTeapot:              pkgerrors.CodeValidation,
		http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
		http.StatusBadGateway:          pkgerrors.CodeDependency,
	}
	for status, want := range tests {
		assert.Equal(t, want, codeForStatus(status), "status %d", status)
	}
}

func TestMapErrorInspectsBody(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   pkgerrors.Code
	}{
		{"auth category", http.StatusBadRequest, `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`, pkgerrors.CodeUnauthorized},
		{"idempotency reuse", http.StatusBadRequest, `{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`, pkgerrors.CodeIdempotency},
		{"card declined", http.StatusPaymentRequired, `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED"}]}`, pkgerrors.CodeDependency},
		{"unparseable body", http.StatusNotFound, `not json`, pkgerrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapError(sqcore.NewAPIError(tt.status, errors.New(tt.body)), "payments.create")
			typed := pkgerrors.As(mapped)
			require.NotNil(t, typed)
			assert.Equal(t, tt.want, typed.Code())
		})
	}

	plain := pkgerrors.As(mapError(context.DeadlineExceeded, "cards.create"))
	require.NotNil(t, plain)
	assert.Equal(t, pkgerrors.CodeDependency, plain.Code())
	assert.ErrorIs(t, plain, context.DeadlineExceeded)
}

func TestApiErrorsDecodesDetails(t *testing.T) {
	apiErr := sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"API_ERROR","code":"BAD_REQUEST","detail":"oops"}]}`))
	got := apiErrors(apiErr)
	require.Len(t, got, 1)
	assert.Equal(t, sq.ErrorCodeBadRequest, got[0].GetCode())
}

func TestCardRequestOmitsBlankFields(t *testing.T) {
	req := CardCreateParams{CustomerID: "cust-1", SourceID: "cnon:abc", IdempotencyKey: "idem-1"}.request()
	assert.Equal(t, "idem-1", req.IdempotencyKey)
	assert.Nil(t, req.VerificationToken)
	require.NotNil(t, req.Card)
	assert.Equal(t, "cust-1", deref(req.Card.CustomerID))
	assert.Nil(t, req.Card.CardholderName)
}
