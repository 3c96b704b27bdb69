package billingkeys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/licensing-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/square"
)

type stubVault struct {
	cards       int
	customerErr error
	disabled    []string
	lastCard    square.CardCreateParams
}

func (s *stubVault) EnsureCustomer(_ context.Context, params square.CustomerCreateParams) (*sq.Customer, error) {
	if s.customerErr != nil {
		return nil, s.customerErr
	}
	id := "cust-" + params.ReferenceID
	return &sq.Customer{ID: &id}, nil
}

func (s *stubVault) CreateCard(_ context.Context, params square.CardCreateParams) (*sq.Card, error) {
	s.cards++
	s.lastCard = params
	id := fmt.Sprintf("card-%d", s.cards)
	last4 := "4242"
	brand := sq.CardBrandVisa
	month, year := int64(12), int64(2030)
	return &sq.Card{ID: &id, Last4: &last4, CardBrand: &brand, ExpMonth: &month, ExpYear: &year}, nil
}

func (s *stubVault) DisableCard(_ context.Context, cardID string) error {
	s.disabled = append(s.disabled, cardID)
	return nil
}

func newTestService(t *testing.T) (Service, *stubVault) {
	t.Helper()
	client := dbtest.Open(t)
	vault := &stubVault{}
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(client.DB()),
		Vault:  vault,
		Tx:     client,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("setup error: %v", err)
	}
	return svc, vault
}

func TestRegisterDefaultsFirstCard(t *testing.T) {
	svc, vault := newTestService(t)
	owner := uuid.New()

	key, err := svc.Register(context.Background(), owner, RegisterInput{SourceID: "cnon:ok", IdempotencyKey: "idem-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !key.IsDefault || !key.Active {
		t.Fatalf("expected first card to be the active default, got %+v", key)
	}
	if key.GatewayCardID != "card-1" || key.GatewayCustomerID != "cust-lic:owner:"+owner.String() {
		t.Fatalf("unexpected gateway ids %q %q", key.GatewayCardID, key.GatewayCustomerID)
	}
	if key.Last4 == nil || *key.Last4 != "4242" || key.ExpYear == nil || *key.ExpYear != 2030 {
		t.Fatalf("card metadata not copied: %+v", key)
	}
	if vault.lastCard.IdempotencyKey != "idem-1" {
		t.Fatalf("expected idempotency key forwarded, got %q", vault.lastCard.IdempotencyKey)
	}
}

func TestRegisterKeepsExistingDefaultUnlessAsked(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	if _, err := svc.Register(ctx, owner, RegisterInput{SourceID: "a"}); err != nil {
		t.Fatalf("register first: %v", err)
	}
	second, err := svc.Register(ctx, owner, RegisterInput{SourceID: "b"})
	if err != nil {
		t.Fatalf("register second: %v", err)
	}
	if second.IsDefault {
		t.Fatal("expected second card to stay non-default")
	}
	third, err := svc.Register(ctx, owner, RegisterInput{SourceID: "c", MakeDefault: true})
	if err != nil {
		t.Fatalf("register third: %v", err)
	}
	if !third.IsDefault {
		t.Fatal("expected requested default")
	}

	keys, err := svc.List(ctx, owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(keys))
	}
	defaults := 0
	for _, k := range keys {
		if k.IsDefault {
			defaults++
			if k.ID != third.ID {
				t.Fatalf("expected %s as default, got %s", third.ID, k.ID)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default, got %d", defaults)
	}
	if keys[0].ID != third.ID {
		t.Fatal("expected default listed first")
	}
}

func TestSetDefaultSwitchesAndChecksOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	first, _ := svc.Register(ctx, owner, RegisterInput{SourceID: "a"})
	second, _ := svc.Register(ctx, owner, RegisterInput{SourceID: "b"})

	if _, err := svc.SetDefault(ctx, uuid.New(), second.ID); !pkgerrors.IsCode(err, pkgerrors.CodeAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	updated, err := svc.SetDefault(ctx, owner, second.ID)
	if err != nil {
		t.Fatalf("set default: %v", err)
	}
	if !updated.IsDefault {
		t.Fatal("expected second card default")
	}
	current, err := svc.Default(ctx, owner)
	if err != nil || current == nil || current.ID != second.ID {
		t.Fatalf("expected default lookup to return second card, got %v %v", current, err)
	}
	if _, err := svc.SetDefault(ctx, owner, first.ID); err != nil {
		t.Fatalf("switch back: %v", err)
	}
}

func TestDeleteDisablesCardAndPromotesNextDefault(t *testing.T) {
	svc, vault := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	first, _ := svc.Register(ctx, owner, RegisterInput{SourceID: "a"})
	second, _ := svc.Register(ctx, owner, RegisterInput{SourceID: "b"})

	if err := svc.Delete(ctx, owner, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(vault.disabled) != 1 || vault.disabled[0] != first.GatewayCardID {
		t.Fatalf("expected gateway card disabled, got %v", vault.disabled)
	}
	if _, err := svc.GetUsable(ctx, first.ID); !pkgerrors.IsCode(err, pkgerrors.CodeBillingKeyNotFound) {
		t.Fatalf("expected deleted key unusable, got %v", err)
	}
	current, err := svc.Default(ctx, owner)
	if err != nil || current == nil || current.ID != second.ID {
		t.Fatalf("expected remaining key promoted, got %v %v", current, err)
	}
	if err := svc.Delete(ctx, owner, first.ID); !pkgerrors.IsCode(err, pkgerrors.CodeBillingKeyNotFound) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}
	if err := svc.Delete(ctx, owner, second.ID); err != nil {
		t.Fatalf("delete last: %v", err)
	}
	if current, err := svc.Default(ctx, owner); err != nil || current != nil {
		t.Fatalf("expected no default left, got %v %v", current, err)
	}
}

func TestRegisterValidatesInputAndGatewayFailures(t *testing.T) {
	svc, vault := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, uuid.New(), RegisterInput{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	vault.customerErr = errors.New("square down")
	if _, err := svc.Register(ctx, uuid.New(), RegisterInput{SourceID: "x"}); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if vault.cards != 0 {
		t.Fatal("expected no card vaulted when the customer lookup fails")
	}
}
