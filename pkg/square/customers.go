package square

import (
	"context"

	sq "github.com/square/square-go-sdk"
)

// CustomerCreateParams identifies the license owner on the Square side.
// ReferenceID carries the owner id and is the lookup key for EnsureCustomer.
type CustomerCreateParams struct {
	Email          string
	ReferenceID    string
	Note           string
	IdempotencyKey string
}

// EnsureCustomer reuses the customer registered under ReferenceID (or Email)
// and creates one only when the search comes back empty.
func (c *Client) EnsureCustomer(ctx context.Context, params CustomerCreateParams) (*sq.Customer, error) {
	existing, err := c.findCustomer(ctx, params.ReferenceID, params.Email)
	if err != nil || existing != nil {
		return existing, err
	}
	return c.CreateCustomer(ctx, params)
}

func (c *Client) CreateCustomer(ctx context.Context, params CustomerCreateParams) (*sq.Customer, error) {
	req := &sq.CreateCustomerRequest{
		IdempotencyKey: optional(idempotencyKey("customer", params.IdempotencyKey)),
		EmailAddress:   optional(params.Email),
		ReferenceID:    optional(params.ReferenceID),
		Note:           optional(params.Note),
	}
	var customer *sq.Customer
	err := c.call(ctx, "customers.create", map[string]any{"reference_id": params.ReferenceID}, func() error {
		resp, err := c.sdk.Customers.Create(ctx, req)
		if err != nil {
			return err
		}
		customer = resp.GetCustomer()
		return nil
	})
	return customer, err
}

func (c *Client) findCustomer(ctx context.Context, referenceID, email string) (*sq.Customer, error) {
	filter := &sq.CustomerFilter{}
	switch {
	case optional(referenceID) != nil:
		filter.ReferenceID = &sq.CustomerTextFilter{Exact: optional(referenceID)}
	case optional(email) != nil:
		filter.EmailAddress = &sq.CustomerTextFilter{Exact: optional(email)}
	default:
		return nil, nil
	}

	limit := int64(1)
	var found *sq.Customer
	err := c.call(ctx, "customers.search", map[string]any{"reference_id": referenceID, "email": email}, func() error {
		resp, err := c.sdk.Customers.Search(ctx, &sq.SearchCustomersRequest{
			Query: &sq.CustomerQuery{Filter: filter},
			Limit: &limit,
		})
		if err != nil {
			return err
		}
		if customers := resp.GetCustomers(); len(customers) > 0 {
			found = customers[0]
		}
		return nil
	})
	return found, err
}
