package orders

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/internal/licenses"
	"github.com/angelmondragon/licensing-backend/internal/subscriptions"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/licensing-backend/pkg/security"
)

const (
	defaultFailureReason = "payment failed"
	pendingExpiredReason = "payment not received before the order expired"
)

// HandlePaymentWebhook settles an order from a signed provider notification.
// Notifications are keyed by order status, so redelivery of a settled order
// replays the stored outcome instead of issuing again.
func (s *service) HandlePaymentWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if !security.VerifyHMAC(s.secret, body, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	var note PaymentNotification
	if err := json.Unmarshal(body, &note); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	if note.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	note.Status = enums.OrderStatus(strings.ToUpper(string(note.Status)))
	if note.Status != enums.OrderStatusPaid && note.Status != enums.OrderStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be PAID or FAILED").
			WithDetails(map[string]any{"status": note.Status})
	}

	snapshot, err := s.repo.FindByID(ctx, note.OrderID)
	if err != nil {
		return nil, mapFindErr(err)
	}
	plan, err := s.plans.Get(ctx, snapshot.PlanID)
	if err != nil {
		return nil, err
	}

	var result *WebhookResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, note.OrderID)
		if err != nil {
			return mapFindErr(err)
		}
		if order.Status == note.Status {
			result = &WebhookResult{OrderID: order.ID, Status: order.Status, LicenseID: order.LicenseID, Replayed: true}
			return nil
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already settled").
				WithDetails(map[string]any{"currentStatus": order.Status})
		}

		if note.Status == enums.OrderStatusFailed {
			reason := defaultFailureReason
			if note.Reason != nil && strings.TrimSpace(*note.Reason) != "" {
				reason = strings.TrimSpace(*note.Reason)
			}
			order.Status = enums.OrderStatusFailed
			order.FailureReason = &reason
			if err := repo.Save(ctx, order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order failed")
			}
			result = &WebhookResult{OrderID: order.ID, Status: order.Status, LicenseID: order.LicenseID}
			return nil
		}

		if !note.Amount.Equal(order.Amount) {
			return pkgerrors.New(pkgerrors.CodeValidation, "paid amount does not match the order").
				WithDetails(map[string]any{"expected": order.Amount.StringFixed(2), "received": note.Amount.StringFixed(2)})
		}
		license, err := s.fulfil(ctx, tx, order, plan)
		if err != nil {
			return err
		}
		if plan.LicenseType == enums.LicenseTypeSubscription {
			if _, err := s.subscriptions.CreateFromOrder(ctx, tx, subscriptions.CreateFromOrderInput{
				Order:   order,
				Plan:    plan,
				License: license,
			}); err != nil {
				return err
			}
		}

		paidAt := s.now()
		order.Status = enums.OrderStatusPaid
		order.LicenseID = &license.ID
		order.PaidAt = &paidAt
		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaidEvent{
				OrderID:   order.ID,
				OwnerID:   order.OwnerID,
				PlanID:    order.PlanID,
				LicenseID: license.ID,
				Amount:    order.Amount,
				Currency:  order.Currency,
				PaidAt:    paidAt,
			},
			OccurredAt: paidAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order paid")
		}
		result = &WebhookResult{OrderID: order.ID, Status: order.Status, LicenseID: order.LicenseID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithUserID(ctx, snapshot.OwnerID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"order_id": result.OrderID.String(),
		"status":   result.Status,
		"replayed": result.Replayed,
	})
	s.logg.Info(logCtx, "payment notification processed")
	return result, nil
}

// fulfil extends the order's license or issues a new one. Extensions stack on
// the remaining term, or start from now once the license has lapsed.
func (s *service) fulfil(ctx context.Context, tx *gorm.DB, order *models.LicenseOrder, plan *models.LicensePlan) (*models.License, error) {
	if order.LicenseID == nil {
		ref := order.ID.String()
		return s.licenses.Issue(ctx, tx, licenses.IssueInput{
			OwnerID:    order.OwnerID,
			Plan:       plan,
			SourceType: enums.LicenseSourceOrder,
			SourceRef:  &ref,
		})
	}
	license, err := s.licenses.LockAndSync(ctx, tx, *order.LicenseID)
	if err != nil {
		return nil, err
	}
	if err := extendable(license, plan); err != nil {
		return nil, err
	}
	base := s.now()
	if license.ValidUntil.After(base) {
		base = *license.ValidUntil
	}
	return s.licenses.Extend(ctx, tx, license.ID, base.Add(time.Duration(plan.DurationDays)*24*time.Hour))
}
