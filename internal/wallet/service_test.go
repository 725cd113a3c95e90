package wallet

import (
	"context"
	"testing"

	"github.com/nosota/mwallet/internal/ledger"
)

func TestServiceCreateAndBalance(t *testing.T) {
	repo := NewMemoryRepository()
	store := ledger.NewInMemory()
	svc := NewService(repo, store)

	ctx := context.Background()
	created, err := svc.Create(ctx, CreateInput{Type: TypeUser, OwnerRef: "user-42", Currency: "EUR"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	fetched, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if fetched.ID != created.ID || fetched.OwnerRef != "user-42" {
		t.Fatalf("expected wallet %s owned by user-42, got %+v", created.ID, fetched)
	}

	system, err := svc.Create(ctx, CreateInput{Type: TypeSystem})
	if err != nil {
		t.Fatalf("create system wallet: %v", err)
	}
	if _, err := store.Transfer(ctx, system.ID, created.ID, 2_500); err != nil {
		t.Fatalf("seed transfer: %v", err)
	}

	balance, err := svc.Balance(ctx, created.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Available != 2_500 || balance.Settled != 2_500 || balance.Held != 0 {
		t.Fatalf("expected available=settled=2500 held=0, got %+v", balance)
	}
}

func TestServiceRejectsUnknownType(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory())

	if _, err := svc.Create(context.Background(), CreateInput{Type: Type("VAULT")}); err == nil {
		t.Fatal("expected error for unknown wallet type")
	}
}
