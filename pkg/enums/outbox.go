package enums

// OutboxAggregateType maps to the aggregate_type_enum column.
type OutboxAggregateType string

const (
	AggregateLicense      OutboxAggregateType = "license"
	AggregateRedeemCode   OutboxAggregateType = "redeem_code"
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregateOrder        OutboxAggregateType = "license_order"
)

var aggregateTypes = newSet("aggregate type",
	AggregateLicense, AggregateRedeemCode, AggregateSubscription, AggregateOrder)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// OutboxEventType maps to the event_type_enum column.
type OutboxEventType string

const (
	EventLicenseIssued              OutboxEventType = "license_issued"
	EventLicenseStatusChanged       OutboxEventType = "license_status_changed"
	EventLicenseEntitlementsGranted OutboxEventType = "license_entitlements_granted"
	EventLicenseEntitlementsRevoked OutboxEventType = "license_entitlements_withdrawn"
	EventLicenseExtended            OutboxEventType = "license_extended"
	EventLicenseRedeemed            OutboxEventType = "license_redeemed"
	EventSubscriptionRenewed        OutboxEventType = "subscription_renewed"
	EventSubscriptionRenewalFailed  OutboxEventType = "subscription_renewal_failed"
	EventOrderPaid                  OutboxEventType = "order_paid"
)

var eventTypes = newSet("event type",
	EventLicenseIssued,
	EventLicenseStatusChanged,
	EventLicenseEntitlementsGranted,
	EventLicenseEntitlementsRevoked,
	EventLicenseExtended,
	EventLicenseRedeemed,
	EventSubscriptionRenewed,
	EventSubscriptionRenewalFailed,
	EventOrderPaid,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

// OutboxDLQErrorReason says why a row was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = newSet("dlq error reason", OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable)

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
