package enums

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "MONTHLY"
	BillingCycleYearly  BillingCycle = "YEARLY"
)

var billingCycles = newSet("billing cycle", BillingCycleMonthly, BillingCycleYearly)

func (v BillingCycle) IsValid() bool { return billingCycles.has(v) }

// Currency is an ISO 4217 code a plan can be priced in.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyKRW Currency = "KRW"
)

var currencies = newSet("currency", CurrencyUSD, CurrencyEUR, CurrencyKRW)

func (c Currency) IsValid() bool { return currencies.has(c) }

// PaymentStatus is the outcome of one charge attempt.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

var paymentStatuses = newSet("payment status", PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed)

func (v PaymentStatus) IsValid() bool { return paymentStatuses.has(v) }

// OrderStatus only moves out of PENDING, once.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusPaid    OrderStatus = "PAID"
	OrderStatusFailed  OrderStatus = "FAILED"
)

var orderStatuses = newSet("order status", OrderStatusPending, OrderStatusPaid, OrderStatusFailed)

func (v OrderStatus) IsValid() bool { return orderStatuses.has(v) }

// SubscriptionStatus is stored as a single letter.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "A"
	SubscriptionStatusExpired  SubscriptionStatus = "E"
	SubscriptionStatusCanceled SubscriptionStatus = "C"
)

var subscriptionStatuses = newSet("subscription status",
	SubscriptionStatusActive, SubscriptionStatusExpired, SubscriptionStatusCanceled)

func (v SubscriptionStatus) IsValid() bool { return subscriptionStatuses.has(v) }
