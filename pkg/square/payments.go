package square

import (
	"context"

	sq "github.com/square/square-go-sdk"
)

// PaymentCreateParams charges AmountCents (minor units, see MinorUnits)
// against SourceID. An empty Currency falls back to the configured default.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	CustomerID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
}

func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	currency := sq.Currency(c.currencyFor(params.Currency))
	amount := params.AmountCents
	location := params.LocationID
	if location == "" {
		location = c.LocationID()
	}
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey("payment", params.IdempotencyKey),
		SourceID:       params.SourceID,
		LocationID:     optional(location),
		CustomerID:     optional(params.CustomerID),
		Note:           optional(params.Note),
		ReferenceID:    optional(params.ReferenceID),
		AmountMoney:    &sq.Money{Amount: &amount, Currency: &currency},
	}

	var payment *sq.Payment
	fields := map[string]any{"reference_id": params.ReferenceID, "amount": amount, "currency": string(currency)}
	err := c.call(ctx, "payments.create", fields, func() error {
		resp, err := c.sdk.Payments.Create(ctx, req)
		if err != nil {
			return err
		}
		payment = resp.GetPayment()
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info(c.logger.WithFields(ctx, map[string]any{
		"payment_id":     deref(payment.GetID()),
		"payment_status": deref(payment.GetStatus()),
	}), "square.payment_created")
	return payment, nil
}

func (c *Client) currencyFor(requested string) string {
	if optional(requested) != nil {
		return normalizeCurrency(requested)
	}
	if c != nil && c.defaultCurrency != "" {
		return c.defaultCurrency
	}
	return "USD"
}
