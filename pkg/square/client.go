// Package square wraps the Square SDK calls the billing-key vault and the
// renewal charger need: customers, cards on file, and one-off payments.
package square

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/licensing-backend/pkg/config"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

var environments = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// Client is safe for concurrent use; the SDK client is shared.
type Client struct {
	sdk             *sqclient.Client
	environment     string
	locationID      string
	defaultCurrency string
	logger          *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square: logger is required")
	}
	env := cfg.Environment()
	baseURL, ok := environments[env]
	if !ok {
		return nil, errors.New("square: environment must be sandbox or production, got " + env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square: access token is required")
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		return nil, errors.New("square: location id is required")
	}

	c := &Client{
		sdk:             sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token)),
		environment:     env,
		locationID:      location,
		defaultCurrency: normalizeCurrency(cfg.Currency),
		logger:          logg,
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"square_env": env, "square_location": location}), "square.client_ready")
	return c, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// LocationID is the location renewal charges are booked against.
func (c *Client) LocationID() string {
	if c == nil {
		return ""
	}
	return c.locationID
}

// idempotencyKey keeps a caller-supplied key so retries collapse on Square's
// side; otherwise each call gets a fresh one.
func idempotencyKey(op, provided string) string {
	if key := strings.TrimSpace(provided); key != "" {
		return key
	}
	return op + "-" + uuid.NewString()
}

var sensitiveFields = []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"}

func redact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		lower := strings.ToLower(key)
		out[key] = value
		for _, marker := range sensitiveFields {
			if strings.Contains(lower, marker) {
				out[key] = "[REDACTED]"
				break
			}
		}
	}
	return out
}

// call runs one SDK request with uniform logging and error mapping.
func (c *Client) call(ctx context.Context, op string, fields map[string]any, fn func() error) error {
	ctx = c.logger.WithFields(ctx, redact(fields))
	ctx = c.logger.WithField(ctx, "square_op", op)
	c.logger.Debug(ctx, "square.request")
	if err := fn(); err != nil {
		mapped := mapError(err, op)
		c.logger.Error(ctx, "square.request_failed", mapped)
		return mapped
	}
	c.logger.Info(ctx, "square.request_ok")
	return nil
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "USD"
	}
	return code
}
