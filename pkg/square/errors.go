package square

import (
	"encoding/json"
	"errors"
	"net/http"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
)

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusPaymentRequired:     pkgerrors.CodeDependency,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

// codeForStatus maps a Square HTTP status onto the local error taxonomy.
// Unlisted 4xx are validation failures; everything else is a dependency fault.
func codeForStatus(status int) pkgerrors.Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

func mapError(err error, op string) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square "+op+" failed")
	}
	code := codeForStatus(apiErr.StatusCode)
	for _, detail := range apiErrors(apiErr) {
		if detail == nil {
			continue
		}
		if detail.Code == sq.ErrorCodeIdempotencyKeyReused {
			code = pkgerrors.CodeIdempotency
			break
		}
		if detail.Category == sq.ErrorCategoryAuthenticationError {
			code = pkgerrors.CodeUnauthorized
			break
		}
	}
	return pkgerrors.Wrap(code, err, "square "+op+" failed")
}

// apiErrors decodes the errors array Square returns in the response body.
func apiErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(inner.Error()), &body); err != nil {
		return nil
	}
	return body.Errors
}
