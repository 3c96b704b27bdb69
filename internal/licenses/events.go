package licenses

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/payloads"
)

type statusChange struct {
	action string
	reason *string
	actor  *outbox.ActorRef
}

// applyStatus moves license to next along legal edges, emitting one status event per hop
// and a single entitlement event when the grant flips. The caller saves the row.
func (s *service) applyStatus(ctx context.Context, tx *gorm.DB, license *models.License, next enums.LicenseStatus, change statusChange) error {
	from := license.Status
	if from == next {
		return nil
	}
	hops, ok := steps(from, next, license.GraceDays)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInvalidLicenseState, "illegal license status change").
			WithDetails(map[string]any{"currentStatus": from, "targetStatus": next})
	}
	reason := ""
	if change.reason != nil {
		reason = *change.reason
	}
	occurredAt := s.now()
	prev := from
	for _, hop := range hops {
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLicenseStatusChanged,
			AggregateType: enums.AggregateLicense,
			AggregateID:   license.ID,
			Actor:         change.actor,
			Data: payloads.LicenseStatusChangedEvent{
				LicenseID: license.ID,
				OwnerID:   license.OwnerID,
				From:      prev,
				To:        hop,
				Action:    change.action,
				Reason:    reason,
			},
			OccurredAt: occurredAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit license status changed")
		}
		prev = hop
	}
	license.Status = next
	s.metrics.IncTransition(string(next))

	granted, grants := GrantsEntitlements(from), GrantsEntitlements(next)
	if granted != grants {
		if err := s.emitEntitlements(ctx, tx, license, grants, change.actor, occurredAt); err != nil {
			return err
		}
	}

	logCtx := s.logg.WithLicenseID(ctx, license.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": from, "to": next, "action": change.action})
	s.logg.Info(logCtx, "license status changed")
	return nil
}

func (s *service) emitEntitlements(ctx context.Context, tx *gorm.DB, license *models.License, granted bool, actor *outbox.ActorRef, occurredAt time.Time) error {
	eventType := enums.EventLicenseEntitlementsRevoked
	if granted {
		eventType = enums.EventLicenseEntitlementsGranted
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateLicense,
		AggregateID:   license.ID,
		Actor:         actor,
		Data: payloads.LicenseEntitlementsEvent{
			LicenseID:    license.ID,
			OwnerID:      license.OwnerID,
			ProductID:    license.ProductID,
			Status:       license.Status,
			Entitlements: []string(license.Entitlements.Clone()),
		},
		OccurredAt: occurredAt,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit license entitlements")
	}
	return nil
}
