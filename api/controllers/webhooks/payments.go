package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/licensing-backend/api/responses"
	"github.com/angelmondragon/licensing-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
	SignatureHeader = "X-Signature"
	maxPayloadBytes = 64 << 10
)

type PaymentWebhookService interface {
	HandlePaymentWebhook(ctx context.Context, body []byte, signature string) (*orders.WebhookResult, error)
}

// PaymentWebhook confirms or fails a pending order. The body is passed through untouched
// so the signature is checked over the exact bytes the provider signed.
func PaymentWebhook(svc PaymentWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(SignatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "payment signature missing"))
			return
		}

		result, err := svc.HandlePaymentWebhook(ctx, payload, signature)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"order_id": result.OrderID.String(),
				"status":   string(result.Status),
				"replayed": result.Replayed,
			})
			logg.Info(logCtx, "payment webhook processed")
		}
		responses.WriteSuccess(w, result)
	}
}
