package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogGenericCodes(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeForbidden:     {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
		CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
		CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
		CodeInternal:      {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
	}
	for code, want := range cases {
		assert.Equal(t, want, MetadataFor(code), "code %s", code)
	}
}

func TestCatalogLicensingCodes(t *testing.T) {
	statuses := map[Code]int{
		CodeSeatLimitExceeded:       http.StatusConflict,
		CodeRedeemCampaignFull:      http.StatusConflict,
		CodeRedeemUserLimitExceeded: http.StatusConflict,
		CodeRedeemCodeExpired:       http.StatusGone,
		CodeRedeemRateLimited:       http.StatusTooManyRequests,
		CodeLicenseNotFound:         http.StatusNotFound,
		CodeLicenseSuspended:        http.StatusForbidden,
	}
	for code, status := range statuses {
		assert.Equal(t, status, code.Metadata().HTTPStatus, "code %s", code)
	}
	assert.Len(t, catalog, len(genericCatalog)+len(licensingCatalog))
}

func TestUnknownCodeResolvesAsInternal(t *testing.T) {
	assert.Equal(t, catalog[CodeInternal], MetadataFor("SOMETHING_UNKNOWN"))
}

func TestMergeCatalogsRejectsDuplicates(t *testing.T) {
	assert.PanicsWithValue(t, "errors: code NOT_FOUND registered twice", func() {
		mergeCatalogs(genericCatalog, map[Code]Metadata{CodeNotFound: meta(http.StatusGone, "gone")})
	})
}

func TestErrorAccessors(t *testing.T) {
	e := New(CodeValidation, "missing foo")
	assert.Equal(t, CodeValidation, e.Code())
	assert.Equal(t, "missing foo", e.Message())
	assert.Nil(t, e.Details())
	assert.Equal(t, "VALIDATION_ERROR: missing foo", e.Error())

	detail := map[string]any{"field": "foo"}
	assert.Same(t, e, e.WithDetails(detail))
	assert.Equal(t, detail, e.Details())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Empty(t, nilErr.Error())
	assert.Nil(t, nilErr.WithDetails("x"))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeConflict, wrapped.Code())
	assert.Nil(t, New(CodeConflict, "x").Unwrap())
}

func TestAsFindsOutermostTypedError(t *testing.T) {
	inner := New(CodeNotFound, "missing")
	outer := Wrap(CodeForbidden, fmt.Errorf("lookup: %w", inner), "no entry")

	got := As(fmt.Errorf("handler: %w", outer))
	require.NotNil(t, got)
	assert.Equal(t, CodeForbidden, got.Code())
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestIsCode(t *testing.T) {
	err := Wrap(CodeRedeemCodeDepleted, stdErrors.New("0 rows"), "code exhausted")
	assert.True(t, IsCode(err, CodeRedeemCodeDepleted))
	assert.False(t, IsCode(err, CodeRedeemCampaignFull))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeRedeemCodeDepleted))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Wrap(CodeDependency, stdErrors.New("timeout"), "square unavailable")))
	assert.True(t, Retryable(New(CodeRedeemRateLimited, "slow down")))
	assert.False(t, Retryable(New(CodeSeatLimitExceeded, "full")))
	assert.False(t, Retryable(stdErrors.New("plain")))
}

func TestInspectCollectsChainAndDriverFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_activations_license_fingerprint", TableName: "activations"}
	err := Wrap(CodeConflict, fmt.Errorf("insert activation: %w", pgErr), "device already bound")

	d := Inspect(err)
	assert.Equal(t, CodeConflict, d.Code)
	assert.GreaterOrEqual(t, len(d.Chain), 2)

	fields := d.Fields()
	assert.Equal(t, "ux_activations_license_fingerprint", fields["pg_constraint"])
	assert.Equal(t, "23505", fields["pg_code"])
	assert.NotContains(t, fields, "pg_detail")
}

func TestInspectNil(t *testing.T) {
	d := Inspect(nil)
	assert.Empty(t, d.Message)
	assert.Nil(t, d.Chain)
}
