package plans

import (
	"strings"

	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/licensing-backend/pkg/db/types"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
)

func normalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// validatePlan checks the cross-field rules every stored plan must satisfy.
func validatePlan(plan *models.LicensePlan) error {
	fail := func(msg string) error {
		return pkgerrors.New(pkgerrors.CodeValidation, msg)
	}
	if strings.TrimSpace(plan.Code) == "" || len(plan.Code) > 64 {
		return fail("code must be 1-64 characters")
	}
	if strings.TrimSpace(plan.Name) == "" {
		return fail("name is required")
	}
	if !plan.LicenseType.IsValid() {
		return fail("invalid license type")
	}
	switch plan.LicenseType {
	case enums.LicenseTypePerpetual:
		if plan.DurationDays != 0 {
			return fail("perpetual plans cannot carry a duration")
		}
	default:
		if plan.DurationDays <= 0 {
			return fail("durationDays must be positive for trial and subscription plans")
		}
	}
	if plan.LicenseType == enums.LicenseTypeSubscription {
		if plan.BillingCycle == nil || !plan.BillingCycle.IsValid() {
			return fail("subscription plans require a billing cycle")
		}
	} else if plan.BillingCycle != nil {
		return fail("billing cycle is only allowed on subscription plans")
	}
	if plan.GraceDays < 0 {
		return fail("graceDays cannot be negative")
	}
	if plan.MaxActivations < 1 {
		return fail("maxActivations must be at least 1")
	}
	if plan.MaxConcurrentSessions < 1 {
		return fail("maxConcurrentSessions must be at least 1")
	}
	if plan.AllowOfflineDays < 0 {
		return fail("allowOfflineDays cannot be negative")
	}
	if plan.SessionTTLMinutes < 1 {
		return fail("sessionTtlMinutes must be at least 1")
	}
	if plan.Price.IsNegative() {
		return fail("price cannot be negative")
	}
	if !plan.Price.Equal(plan.Price.Round(2)) {
		return fail("price supports at most two decimals")
	}
	if plan.LicenseType == enums.LicenseTypeSubscription && !plan.Price.GreaterThan(decimal.Zero) {
		return fail("subscription plans require a positive price")
	}
	if !plan.Currency.IsValid() {
		return fail("invalid currency")
	}
	return nil
}

func normalizeEntitlements(values []string) dbtypes.StringSet {
	return dbtypes.NewStringSet(values...)
}
