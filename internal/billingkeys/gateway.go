package billingkeys

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/square"
)

// ChargeRequest charges a stored billing key once. OrderID doubles as the
// gateway idempotency key, so retrying the same request never double-charges.
type ChargeRequest struct {
	BillingKey *models.BillingKey
	Amount     decimal.Decimal
	Currency   enums.Currency
	OrderID    string
}

type ChargeResult struct {
	PaymentID string
	Status    string
}

type paymentCreator interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	LocationID() string
}

// SquareGateway charges vaulted cards through Square payments.
type SquareGateway struct {
	client paymentCreator
}

func NewSquareGateway(client paymentCreator) (*SquareGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareGateway{client: client}, nil
}

func (g *SquareGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.BillingKey == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "billing key required")
	}
	minor, err := square.MinorUnits(req.Amount, string(req.Currency))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid charge amount")
	}
	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    minor,
		Currency:       string(req.Currency),
		LocationID:     g.client.LocationID(),
		CustomerID:     req.BillingKey.GatewayCustomerID,
		SourceID:       req.BillingKey.GatewayCardID,
		IdempotencyKey: req.OrderID,
		ReferenceID:    req.OrderID,
		Note:           "license renewal " + req.OrderID,
	})
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.GetID() == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square payment missing id")
	}
	status := strings.ToUpper(stringValue(payment.GetStatus()))
	if status != "COMPLETED" && status != "APPROVED" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment not completed").
			WithDetails(map[string]any{"status": status})
	}
	return &ChargeResult{PaymentID: *payment.GetID(), Status: status}, nil
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
