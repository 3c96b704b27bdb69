package products

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateInput{Code: "  Studio-Pro ", Name: "Studio Pro"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if product.Code != "studio-pro" || !product.Active {
		t.Fatalf("unexpected product %+v", product)
	}

	_, err = svc.Create(ctx, CreateInput{Code: "studio-pro", Name: "Again"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateValidatesCode(t *testing.T) {
	svc := newTestService(t)
	for _, code := range []string{"", "a", "has space", "under_score", "-leading"} {
		_, err := svc.Create(context.Background(), CreateInput{Code: code, Name: "x"})
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("code %q: expected validation error, got %v", code, err)
		}
	}
}

func TestGetMissingProduct(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get(context.Background(), uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestListPaginatesAndToggles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for _, code := range []string{"alpha", "beta", "gamma"} {
		if _, err := svc.Create(ctx, CreateInput{Code: code, Name: code}); err != nil {
			t.Fatalf("Create %s: %v", code, err)
		}
	}

	first, err := svc.List(ctx, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(first.Items) != 2 || first.Cursor == "" {
		t.Fatalf("expected first page of 2 with cursor, got %d %q", len(first.Items), first.Cursor)
	}
	second, err := svc.List(ctx, pagination.Params{Limit: 2, Cursor: first.Cursor})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(second.Items) != 1 || second.Cursor != "" {
		t.Fatalf("expected last page of 1, got %d %q", len(second.Items), second.Cursor)
	}
	seen := map[uuid.UUID]bool{}
	for _, p := range append(first.Items, second.Items...) {
		seen[p.ID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct products across pages, got %d", len(seen))
	}

	updated, err := svc.SetActive(ctx, second.Items[0].ID, false)
	if err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if updated.Active {
		t.Fatal("expected product deactivated")
	}
}
