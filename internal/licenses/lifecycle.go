package licenses

import (
	"time"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
)

const day = 24 * time.Hour

// edges is the single source of truth for persisted status changes.
var edges = map[enums.LicenseStatus][]enums.LicenseStatus{
	enums.LicenseStatusPending: {
		enums.LicenseStatusActive,
		enums.LicenseStatusSuspended,
		enums.LicenseStatusRevoked,
	},
	enums.LicenseStatusActive: {
		enums.LicenseStatusExpiredGrace,
		enums.LicenseStatusExpiredHard,
		enums.LicenseStatusSuspended,
		enums.LicenseStatusRevoked,
	},
	enums.LicenseStatusExpiredGrace: {
		enums.LicenseStatusActive,
		enums.LicenseStatusExpiredHard,
		enums.LicenseStatusSuspended,
		enums.LicenseStatusRevoked,
	},
	enums.LicenseStatusExpiredHard: {
		enums.LicenseStatusActive,
		enums.LicenseStatusExpiredGrace,
		enums.LicenseStatusSuspended,
		enums.LicenseStatusRevoked,
	},
	enums.LicenseStatusSuspended: {
		enums.LicenseStatusActive,
		enums.LicenseStatusRevoked,
	},
	enums.LicenseStatusRevoked: nil,
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to enums.LicenseStatus) bool {
	for _, candidate := range edges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// GrantsEntitlements is true only while the license may be used.
func GrantsEntitlements(status enums.LicenseStatus) bool {
	return status == enums.LicenseStatusActive || status == enums.LicenseStatusExpiredGrace
}

// Evaluate recomputes the time-driven status of a record. Administrative and
// pre-activation states are returned untouched.
func Evaluate(now time.Time, record *models.License) enums.LicenseStatus {
	switch record.Status {
	case enums.LicenseStatusPending, enums.LicenseStatusSuspended, enums.LicenseStatusRevoked:
		return record.Status
	}
	return evaluateTerm(now, record.ValidUntil, record.GraceDays)
}

func evaluateTerm(now time.Time, validUntil *time.Time, graceDays int) enums.LicenseStatus {
	if validUntil == nil || !now.After(*validUntil) {
		return enums.LicenseStatusActive
	}
	if graceDays > 0 && !now.After(validUntil.Add(time.Duration(graceDays)*day)) {
		return enums.LicenseStatusExpiredGrace
	}
	return enums.LicenseStatusExpiredHard
}

// Transition applies an administrative action and re-evaluates the outcome against time.
func Transition(now time.Time, record *models.License, action enums.LicenseAction) (enums.LicenseStatus, error) {
	current := record.Status
	var next enums.LicenseStatus
	switch action {
	case enums.LicenseActionActivate:
		if current != enums.LicenseStatusPending {
			return current, invalidState(current, action)
		}
		next = evaluateTerm(now, record.ValidUntil, record.GraceDays)
	case enums.LicenseActionReinstate:
		if current != enums.LicenseStatusSuspended {
			return current, invalidState(current, action)
		}
		next = evaluateTerm(now, record.ValidUntil, record.GraceDays)
	case enums.LicenseActionSuspend:
		if !CanTransition(current, enums.LicenseStatusSuspended) {
			return current, invalidState(current, action)
		}
		next = enums.LicenseStatusSuspended
	case enums.LicenseActionRevoke:
		if !CanTransition(current, enums.LicenseStatusRevoked) {
			return current, invalidState(current, action)
		}
		next = enums.LicenseStatusRevoked
	default:
		return current, pkgerrors.New(pkgerrors.CodeValidation, "unknown license action")
	}
	if _, ok := steps(current, next, record.GraceDays); !ok {
		return current, invalidState(current, action)
	}
	return next, nil
}

// steps expands from -> to into the chain of legal edges it passes through.
// ACTIVE never jumps straight to EXPIRED_HARD while a grace window exists, and
// states that can only leave through ACTIVE pass through it first.
func steps(from, to enums.LicenseStatus, graceDays int) ([]enums.LicenseStatus, bool) {
	if from == to {
		return nil, true
	}
	direct := CanTransition(from, to)
	if direct && from == enums.LicenseStatusActive && to == enums.LicenseStatusExpiredHard && graceDays > 0 {
		return []enums.LicenseStatus{enums.LicenseStatusExpiredGrace, enums.LicenseStatusExpiredHard}, true
	}
	if direct {
		return []enums.LicenseStatus{to}, true
	}
	if from != enums.LicenseStatusActive && CanTransition(from, enums.LicenseStatusActive) {
		rest, ok := steps(enums.LicenseStatusActive, to, graceDays)
		if !ok {
			return nil, false
		}
		return append([]enums.LicenseStatus{enums.LicenseStatusActive}, rest...), true
	}
	return nil, false
}

func invalidState(current enums.LicenseStatus, action enums.LicenseAction) error {
	return pkgerrors.New(pkgerrors.CodeInvalidLicenseState, "action not allowed in current license state").
		WithDetails(map[string]any{"currentStatus": current, "action": action})
}

// UsabilityError maps a status that does not grant entitlements to the error a client sees.
func UsabilityError(status enums.LicenseStatus) error {
	details := map[string]any{"currentStatus": status}
	switch status {
	case enums.LicenseStatusActive, enums.LicenseStatusExpiredGrace:
		return nil
	case enums.LicenseStatusExpiredHard:
		return pkgerrors.New(pkgerrors.CodeLicenseExpired, "license expired").WithDetails(details)
	case enums.LicenseStatusSuspended:
		return pkgerrors.New(pkgerrors.CodeLicenseSuspended, "license suspended").WithDetails(details)
	case enums.LicenseStatusRevoked:
		return pkgerrors.New(pkgerrors.CodeLicenseRevoked, "license revoked").WithDetails(details)
	default:
		return pkgerrors.New(pkgerrors.CodeInvalidLicenseState, "license is not usable yet").WithDetails(details)
	}
}
