package errors

import "net/http"

// Licensing codes are stable identifiers the UI maps to localized text.
const (
	CodeAccessDenied Code = "ACCESS_DENIED"

	CodeProductNotFound     Code = "PRODUCT_NOT_FOUND"
	CodePlanNotFound        Code = "PLAN_NOT_FOUND"
	CodePlanCodeDuplicate   Code = "PLAN_CODE_DUPLICATE"
	CodePlanNotAvailable    Code = "PLAN_NOT_AVAILABLE"
	CodeLicenseNotFound     Code = "LICENSE_NOT_FOUND"
	CodeLicenseExpired      Code = "LICENSE_EXPIRED"
	CodeLicenseSuspended    Code = "LICENSE_SUSPENDED"
	CodeLicenseRevoked      Code = "LICENSE_REVOKED"
	CodeInvalidLicenseState Code = "INVALID_LICENSE_STATE"

	CodeSeatLimitExceeded          Code = "SEAT_LIMIT_EXCEEDED"
	CodeSessionLimitExceeded       Code = "CONCURRENT_SESSION_LIMIT_EXCEEDED"
	CodeActivationNotFound         Code = "ACTIVATION_NOT_FOUND"
	CodeSessionDeactivated         Code = "SESSION_DEACTIVATED"
	CodeInvalidActivationOwnership Code = "INVALID_ACTIVATION_OWNERSHIP"

	CodeRedeemCodeInvalid       Code = "REDEEM_CODE_INVALID"
	CodeRedeemCodeNotFound      Code = "REDEEM_CODE_NOT_FOUND"
	CodeRedeemCodeExpired       Code = "REDEEM_CODE_EXPIRED"
	CodeRedeemCodeDisabled      Code = "REDEEM_CODE_DISABLED"
	CodeRedeemCodeDepleted      Code = "REDEEM_CODE_DEPLETED"
	CodeRedeemCodeHashDuplicate Code = "REDEEM_CODE_HASH_DUPLICATE"
	CodeRedeemCampaignNotFound  Code = "REDEEM_CAMPAIGN_NOT_FOUND"
	CodeRedeemCampaignNotActive Code = "REDEEM_CAMPAIGN_NOT_ACTIVE"
	CodeRedeemCampaignFull      Code = "REDEEM_CAMPAIGN_FULL"
	CodeRedeemUserLimitExceeded Code = "REDEEM_USER_LIMIT_EXCEEDED"
	CodeRedeemRateLimited       Code = "REDEEM_RATE_LIMITED"

	CodeSubscriptionNotFound Code = "SUBSCRIPTION_NOT_FOUND"
	CodeBillingKeyNotFound   Code = "BILLING_KEY_NOT_FOUND"
	CodeOrderNotFound        Code = "ORDER_NOT_FOUND"
)

var licensingCatalog = map[Code]Metadata{
	CodeAccessDenied:        meta(http.StatusForbidden, "access denied"),
	CodeProductNotFound:     meta(http.StatusNotFound, "product not found"),
	CodePlanNotFound:        meta(http.StatusNotFound, "license plan not found"),
	CodePlanCodeDuplicate:   meta(http.StatusConflict, "plan code already exists"),
	CodePlanNotAvailable:    meta(http.StatusUnprocessableEntity, "license plan not available"),
	CodeLicenseNotFound:     meta(http.StatusNotFound, "license not found"),
	CodeLicenseExpired:      meta(http.StatusForbidden, "license expired", withDetails),
	CodeLicenseSuspended:    meta(http.StatusForbidden, "license suspended", withDetails),
	CodeLicenseRevoked:      meta(http.StatusForbidden, "license revoked", withDetails),
	CodeInvalidLicenseState: meta(http.StatusConflict, "license state does not allow this action", withDetails),

	CodeSeatLimitExceeded:          meta(http.StatusConflict, "activation limit reached", withDetails),
	CodeSessionLimitExceeded:       meta(http.StatusConflict, "concurrent session limit reached", withDetails),
	CodeActivationNotFound:         meta(http.StatusNotFound, "activation not found"),
	CodeSessionDeactivated:         meta(http.StatusForbidden, "session was deactivated"),
	CodeInvalidActivationOwnership: meta(http.StatusBadRequest, "activation does not belong to license", withDetails),

	CodeRedeemCodeInvalid:       meta(http.StatusBadRequest, "redeem code format is invalid"),
	CodeRedeemCodeNotFound:      meta(http.StatusNotFound, "redeem code not found"),
	CodeRedeemCodeExpired:       meta(http.StatusGone, "redeem code expired"),
	CodeRedeemCodeDisabled:      meta(http.StatusGone, "redeem code disabled"),
	CodeRedeemCodeDepleted:      meta(http.StatusConflict, "redeem code fully used"),
	CodeRedeemCodeHashDuplicate: meta(http.StatusConflict, "redeem code already exists"),
	CodeRedeemCampaignNotFound:  meta(http.StatusNotFound, "redeem campaign not found"),
	CodeRedeemCampaignNotActive: meta(http.StatusConflict, "redeem campaign not active", withDetails),
	CodeRedeemCampaignFull:      meta(http.StatusConflict, "redeem campaign is full"),
	CodeRedeemUserLimitExceeded: meta(http.StatusConflict, "redemption limit reached for this user"),
	CodeRedeemRateLimited:       meta(http.StatusTooManyRequests, "too many redeem attempts", retryable),

	CodeSubscriptionNotFound: meta(http.StatusNotFound, "subscription not found"),
	CodeBillingKeyNotFound:   meta(http.StatusNotFound, "billing key not found"),
	CodeOrderNotFound:        meta(http.StatusNotFound, "order not found"),
}
