package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/nosota/mwallet/internal/ledger"
	"github.com/nosota/mwallet/internal/wallet"
)

func setupWallets(t *testing.T) (ledger.Store, *wallet.Service, wallet.Wallet, wallet.Wallet) {
	t.Helper()
	store := ledger.NewInMemory()
	walletSvc := wallet.NewService(wallet.NewMemoryRepository(), store)

	ctx := context.Background()
	funding, err := walletSvc.Create(ctx, wallet.CreateInput{Type: wallet.TypeSystem})
	if err != nil {
		t.Fatalf("create funding wallet: %v", err)
	}
	user, err := walletSvc.Create(ctx, wallet.CreateInput{Type: wallet.TypeUser, OwnerRef: "user-1"})
	if err != nil {
		t.Fatalf("create user wallet: %v", err)
	}
	return store, walletSvc, funding, user
}

func TestTransferMovesFunds(t *testing.T) {
	store, walletSvc, funding, user := setupWallets(t)
	svc := NewService(store, walletSvc, nil, false)

	ctx := context.Background()
	res, err := svc.Transfer(ctx, TransferInput{FromWalletID: funding.ID, ToWalletID: user.ID, Amount: 1_500})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.GroupID == "" {
		t.Fatal("expected a group id")
	}
	if res.FromBalance != -1_500 {
		t.Fatalf("expected from balance -1500, got %d", res.FromBalance)
	}
	if res.ToBalance != 1_500 {
		t.Fatalf("expected to balance 1500, got %d", res.ToBalance)
	}

	group, err := store.Group(ctx, res.GroupID)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if group.Status != ledger.GroupSettled {
		t.Fatalf("expected settled group, got %s", group.Status)
	}
}

func TestTransferSufficiencyPolicy(t *testing.T) {
	store, walletSvc, funding, user := setupWallets(t)
	svc := NewService(store, walletSvc, nil, true)

	ctx := context.Background()
	if _, err := svc.Transfer(ctx, TransferInput{FromWalletID: user.ID, ToWalletID: funding.ID, Amount: 100}); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Fund the user, then the same transfer passes the policy.
	if _, err := store.Transfer(ctx, funding.ID, user.ID, 100); err != nil {
		t.Fatalf("seed transfer: %v", err)
	}
	if _, err := svc.Transfer(ctx, TransferInput{FromWalletID: user.ID, ToWalletID: funding.ID, Amount: 100}); err != nil {
		t.Fatalf("transfer after funding: %v", err)
	}
}

func TestTransferRejectsCurrencyMismatch(t *testing.T) {
	store := ledger.NewInMemory()
	walletSvc := wallet.NewService(wallet.NewMemoryRepository(), store)
	svc := NewService(store, walletSvc, nil, false)

	ctx := context.Background()
	eur, err := walletSvc.Create(ctx, wallet.CreateInput{Type: wallet.TypeSystem, Currency: "EUR"})
	if err != nil {
		t.Fatalf("create eur wallet: %v", err)
	}
	usd, err := walletSvc.Create(ctx, wallet.CreateInput{Type: wallet.TypeUser, Currency: "USD"})
	if err != nil {
		t.Fatalf("create usd wallet: %v", err)
	}

	if _, err := svc.Transfer(ctx, TransferInput{FromWalletID: eur.ID, ToWalletID: usd.ID, Amount: 10}); err == nil {
		t.Fatal("expected currency mismatch error")
	}
}
