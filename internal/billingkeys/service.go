package billingkeys

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/square"
)

// Service vaults cards at the gateway and keeps the owner's billing keys in sync.
type Service interface {
	Register(ctx context.Context, ownerID uuid.UUID, input RegisterInput) (*models.BillingKey, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]KeyView, error)
	SetDefault(ctx context.Context, ownerID, id uuid.UUID) (*models.BillingKey, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	GetUsable(ctx context.Context, id uuid.UUID) (*models.BillingKey, error)
	Default(ctx context.Context, ownerID uuid.UUID) (*models.BillingKey, error)
}

type cardVault interface {
	EnsureCustomer(ctx context.Context, params square.CustomerCreateParams) (*sq.Customer, error)
	CreateCard(ctx context.Context, params square.CardCreateParams) (*sq.Card, error)
	DisableCard(ctx context.Context, cardID string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo   Repository
	Vault  cardVault
	Tx     txRunner
	Logger *logger.Logger
}

type service struct {
	repo  Repository
	vault cardVault
	tx    txRunner
	logg  *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("billing key repository required")
	}
	if params.Vault == nil {
		return nil, fmt.Errorf("card vault required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: params.Repo, vault: params.Vault, tx: params.Tx, logg: params.Logger}, nil
}

// Register stores a card with the gateway. The owner's first card always becomes the default.
func (s *service) Register(ctx context.Context, ownerID uuid.UUID, input RegisterInput) (*models.BillingKey, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	sourceID := strings.TrimSpace(input.SourceID)
	if sourceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sourceId is required")
	}

	customer, err := s.vault.EnsureCustomer(ctx, square.CustomerCreateParams{
		Email:       strings.TrimSpace(input.Email),
		ReferenceID: customerReference(ownerID),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure gateway customer")
	}
	customerID := ""
	if customer != nil && customer.GetID() != nil {
		customerID = strings.TrimSpace(*customer.GetID())
	}
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway customer missing id")
	}

	card, err := s.vault.CreateCard(ctx, square.CardCreateParams{
		CustomerID:        customerID,
		SourceID:          sourceID,
		CardholderName:    strings.TrimSpace(input.CardholderName),
		ReferenceID:       ownerID.String(),
		VerificationToken: strings.TrimSpace(input.VerificationToken),
		IdempotencyKey:    strings.TrimSpace(input.IdempotencyKey),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "vault card")
	}
	if card == nil || card.GetID() == nil || strings.TrimSpace(*card.GetID()) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway card missing id")
	}

	key := buildKey(card, ownerID, customerID)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.ListActiveByOwner(ctx, ownerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list billing keys")
		}
		key.IsDefault = input.MakeDefault || !hasDefault(existing)
		if key.IsDefault && len(existing) > 0 {
			if err := repo.ClearDefault(ctx, ownerID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default billing key")
			}
		}
		if err := repo.Create(ctx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist billing key")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithUserID(ctx, ownerID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"billing_key_id": key.ID.String(), "default": key.IsDefault})
	s.logg.Info(logCtx, "billing key registered")
	return key, nil
}

func (s *service) List(ctx context.Context, ownerID uuid.UUID) ([]KeyView, error) {
	keys, err := s.repo.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list billing keys")
	}
	views := make([]KeyView, 0, len(keys))
	for i := range keys {
		views = append(views, NewKeyView(&keys[i]))
	}
	return views, nil
}

func (s *service) SetDefault(ctx context.Context, ownerID, id uuid.UUID) (*models.BillingKey, error) {
	var result *models.BillingKey
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		key, err := ownedActive(ctx, repo, ownerID, id)
		if err != nil {
			return err
		}
		if key.IsDefault {
			result = key
			return nil
		}
		// The partial unique index allows one default per owner, so clear first.
		if err := repo.ClearDefault(ctx, ownerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default billing key")
		}
		key.IsDefault = true
		if err := repo.Save(ctx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save billing key")
		}
		result = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete disables the card at the gateway and deactivates the key. When the
// default goes away the newest remaining key takes over.
func (s *service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	key, err := ownedActive(ctx, s.repo, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.vault.DisableCard(ctx, key.GatewayCardID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "disable gateway card")
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wasDefault := key.IsDefault
		key.Active = false
		key.IsDefault = false
		if err := repo.Save(ctx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate billing key")
		}
		if !wasDefault {
			return nil
		}
		remaining, err := repo.ListActiveByOwner(ctx, ownerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list billing keys")
		}
		if len(remaining) == 0 {
			return nil
		}
		next := remaining[0]
		next.IsDefault = true
		if err := repo.Save(ctx, &next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote billing key")
		}
		return nil
	})
	if err != nil {
		return err
	}
	logCtx := s.logg.WithUserID(ctx, ownerID.String())
	logCtx = s.logg.WithField(logCtx, "billing_key_id", id.String())
	s.logg.Info(logCtx, "billing key deleted")
	return nil
}

// GetUsable returns the key only while it can still be charged.
func (s *service) GetUsable(ctx context.Context, id uuid.UUID) (*models.BillingKey, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindErr(err)
	}
	if !key.Active {
		return nil, pkgerrors.New(pkgerrors.CodeBillingKeyNotFound, "billing key is no longer active")
	}
	return key, nil
}

// Default returns the owner's default key, or nil when none is registered.
func (s *service) Default(ctx context.Context, ownerID uuid.UUID) (*models.BillingKey, error) {
	key, err := s.repo.FindDefault(ctx, ownerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default billing key")
	}
	return key, nil
}

func ownedActive(ctx context.Context, repo Repository, ownerID, id uuid.UUID) (*models.BillingKey, error) {
	key, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindErr(err)
	}
	if key.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeAccessDenied, "billing key belongs to another user")
	}
	if !key.Active {
		return nil, pkgerrors.New(pkgerrors.CodeBillingKeyNotFound, "billing key not found")
	}
	return key, nil
}

func hasDefault(keys []models.BillingKey) bool {
	for _, key := range keys {
		if key.IsDefault {
			return true
		}
	}
	return false
}

func customerReference(ownerID uuid.UUID) string {
	return "lic:owner:" + ownerID.String()
}

func buildKey(card *sq.Card, ownerID uuid.UUID, customerID string) *models.BillingKey {
	key := &models.BillingKey{
		OwnerID:           ownerID,
		GatewayCardID:     strings.TrimSpace(*card.GetID()),
		GatewayCustomerID: customerID,
		Last4:             card.GetLast4(),
		ExpMonth:          intPointer(card.GetExpMonth()),
		ExpYear:           intPointer(card.GetExpYear()),
		Active:            true,
	}
	if brand := card.GetCardBrand(); brand != nil && strings.TrimSpace(string(*brand)) != "" {
		value := string(*brand)
		key.CardBrand = &value
	}
	return key
}

func intPointer(value *int64) *int {
	if value == nil {
		return nil
	}
	v := int(*value)
	return &v
}

func mapFindErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeBillingKeyNotFound, "billing key not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load billing key")
}
