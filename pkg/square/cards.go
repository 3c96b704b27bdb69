package square

import (
	"context"

	sq "github.com/square/square-go-sdk"
)

// CardCreateParams vaults a tokenized card (SourceID) for a customer.
type CardCreateParams struct {
	CustomerID        string
	SourceID          string
	CardholderName    string
	ReferenceID       string
	VerificationToken string
	IdempotencyKey    string
}

func (p CardCreateParams) request() *sq.CreateCardRequest {
	return &sq.CreateCardRequest{
		IdempotencyKey:    idempotencyKey("card", p.IdempotencyKey),
		SourceID:          p.SourceID,
		VerificationToken: optional(p.VerificationToken),
		Card: &sq.Card{
			CustomerID:     optional(p.CustomerID),
			CardholderName: optional(p.CardholderName),
			ReferenceID:    optional(p.ReferenceID),
		},
	}
}

func (c *Client) CreateCard(ctx context.Context, params CardCreateParams) (*sq.Card, error) {
	var card *sq.Card
	err := c.call(ctx, "cards.create", map[string]any{"customer_id": params.CustomerID}, func() error {
		resp, err := c.sdk.Cards.Create(ctx, params.request())
		if err != nil {
			return err
		}
		card = resp.GetCard()
		return nil
	})
	return card, err
}

// DisableCard stops a vaulted card from being charged again.
func (c *Client) DisableCard(ctx context.Context, cardID string) error {
	return c.call(ctx, "cards.disable", map[string]any{"vaulted_card": cardID}, func() error {
		_, err := c.sdk.Cards.Disable(ctx, &sq.DisableCardsRequest{CardID: cardID})
		return err
	})
}
