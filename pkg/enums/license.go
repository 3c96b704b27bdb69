package enums

// LicenseType maps to the license_type column.
type LicenseType string

const (
	LicenseTypeTrial        LicenseType = "TRIAL"
	LicenseTypeSubscription LicenseType = "SUBSCRIPTION"
	LicenseTypePerpetual    LicenseType = "PERPETUAL"
)

var licenseTypes = newSet("license type", LicenseTypeTrial, LicenseTypeSubscription, LicenseTypePerpetual)

func (v LicenseType) IsValid() bool { return licenseTypes.has(v) }

// LicenseStatus is the lifecycle state. Only ACTIVE and EXPIRED_GRACE grant
// entitlements.
type LicenseStatus string

const (
	LicenseStatusPending      LicenseStatus = "PENDING"
	LicenseStatusActive       LicenseStatus = "ACTIVE"
	LicenseStatusExpiredGrace LicenseStatus = "EXPIRED_GRACE"
	LicenseStatusExpiredHard  LicenseStatus = "EXPIRED_HARD"
	LicenseStatusSuspended    LicenseStatus = "SUSPENDED"
	LicenseStatusRevoked      LicenseStatus = "REVOKED"
)

var licenseStatuses = newSet("license status",
	LicenseStatusPending,
	LicenseStatusActive,
	LicenseStatusExpiredGrace,
	LicenseStatusExpiredHard,
	LicenseStatusSuspended,
	LicenseStatusRevoked,
)

func (v LicenseStatus) IsValid() bool { return licenseStatuses.has(v) }

func ParseLicenseStatus(raw string) (LicenseStatus, error) { return licenseStatuses.parse(raw) }

// LicenseSourceType records how a license was granted.
type LicenseSourceType string

const (
	LicenseSourceOrder        LicenseSourceType = "ORDER"
	LicenseSourceRedeem       LicenseSourceType = "REDEEM"
	LicenseSourceAdmin        LicenseSourceType = "ADMIN"
	LicenseSourceSubscription LicenseSourceType = "SUBSCRIPTION"
)

var licenseSources = newSet("license source type",
	LicenseSourceOrder, LicenseSourceRedeem, LicenseSourceAdmin, LicenseSourceSubscription)

func (v LicenseSourceType) IsValid() bool { return licenseSources.has(v) }

// LicenseAction names an administrative lifecycle command.
type LicenseAction string

const (
	LicenseActionActivate  LicenseAction = "ACTIVATE"
	LicenseActionSuspend   LicenseAction = "SUSPEND"
	LicenseActionReinstate LicenseAction = "REINSTATE"
	LicenseActionRevoke    LicenseAction = "REVOKE"
)

var licenseActions = newSet("license action",
	LicenseActionActivate, LicenseActionSuspend, LicenseActionReinstate, LicenseActionRevoke)

func (v LicenseAction) IsValid() bool { return licenseActions.has(v) }

func ParseLicenseAction(raw string) (LicenseAction, error) { return licenseActions.parse(raw) }
