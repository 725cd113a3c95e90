package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nosota/mwallet/internal/ledger"
)

const defaultCurrency = "EUR"

// Service exposes wallet operations backed by the ledger.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
}

// NewService builds a wallet service instance.
func NewService(repo Repository, ledger ledger.Ledger) *Service {
	return &Service{repo: repo, ledger: ledger}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	Type        Type
	OwnerRef    string
	Currency    string
	Description string
}

// Create provisions a wallet and registers it with the ledger.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if !input.Type.Valid() {
		return Wallet{}, fmt.Errorf("unknown wallet type %q", input.Type)
	}

	currency := input.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	wallet := Wallet{
		ID:          uuid.New().String(),
		Type:        input.Type,
		OwnerRef:    input.OwnerRef,
		Currency:    currency,
		Description: input.Description,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}
	if err := s.ledger.EnsureWallet(ctx, wallet.ID); err != nil {
		return Wallet{}, err
	}

	return wallet, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// List returns every wallet id.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.repo.List(ctx)
}

// Balance returns the ledger balances for the wallet.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	wallet, err := s.repo.Get(ctx, id)
	if err != nil {
		return Balance{}, err
	}

	available, err := s.ledger.AvailableBalance(ctx, wallet.ID)
	if err != nil {
		return Balance{}, err
	}
	settled, err := s.ledger.SettledBalance(ctx, wallet.ID)
	if err != nil {
		return Balance{}, err
	}
	held, err := s.ledger.HeldBalance(ctx, wallet.ID)
	if err != nil {
		return Balance{}, err
	}

	return Balance{
		WalletID:  wallet.ID,
		Available: available,
		Settled:   settled,
		Held:      held,
		AsOf:      time.Now().UTC(),
	}, nil
}
