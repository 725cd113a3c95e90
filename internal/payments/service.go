package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/nosota/mwallet/internal/ledger"
	"github.com/nosota/mwallet/internal/notification"
	"github.com/nosota/mwallet/internal/wallet"
)

// Service orchestrates wallet-to-wallet transfers over the ledger core.
type Service struct {
	ledger        ledger.Ledger
	walletService *wallet.Service
	notifier      notification.Notifier

	// enforceSufficiency enables the pre-check rejecting transfers that
	// would overdraw the sender. The check is advisory: it reads the balance
	// in a transaction separate from the transfer, so concurrent transfers
	// can both pass it and drive the balance negative. The ledger core never
	// checks sufficiency and accepts negative balances; the zero-sum gate at
	// settle time is its correctness backstop.
	enforceSufficiency bool
}

// NewService constructs a payment service.
func NewService(ledger ledger.Ledger, walletService *wallet.Service, notifier notification.Notifier, enforceSufficiency bool) *Service {
	return &Service{
		ledger:             ledger,
		walletService:      walletService,
		notifier:           notifier,
		enforceSufficiency: enforceSufficiency,
	}
}

// TransferInput captures the data needed to move funds between wallets.
type TransferInput struct {
	FromWalletID string
	ToWalletID   string
	Amount       int64
}

// TransferResult describes the ledger outcome of a transfer.
type TransferResult struct {
	GroupID     string
	FromBalance int64
	ToBalance   int64
	CompletedAt time.Time
}

// Transfer settles a balanced debit/credit pair between two wallets in one
// atomic unit.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if input.Amount <= 0 {
		return TransferResult{}, ledger.ErrAmountNotPositive
	}

	from, err := s.walletService.Get(ctx, input.FromWalletID)
	if err != nil {
		return TransferResult{}, err
	}
	to, err := s.walletService.Get(ctx, input.ToWalletID)
	if err != nil {
		return TransferResult{}, err
	}
	if from.Currency != to.Currency {
		return TransferResult{}, fmt.Errorf("currency mismatch: %s vs %s", from.Currency, to.Currency)
	}

	if s.enforceSufficiency {
		available, err := s.ledger.AvailableBalance(ctx, from.ID)
		if err != nil {
			return TransferResult{}, err
		}
		if available < input.Amount {
			return TransferResult{}, ledger.ErrInsufficientFunds
		}
	}

	groupID, err := s.ledger.Transfer(ctx, from.ID, to.ID, input.Amount)
	if err != nil {
		return TransferResult{}, err
	}

	fromBalance, err := s.ledger.AvailableBalance(ctx, from.ID)
	if err != nil {
		return TransferResult{}, err
	}
	toBalance, err := s.ledger.AvailableBalance(ctx, to.ID)
	if err != nil {
		return TransferResult{}, err
	}

	result := TransferResult{
		GroupID:     groupID,
		FromBalance: fromBalance,
		ToBalance:   toBalance,
		CompletedAt: time.Now().UTC(),
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransfer,
			Destination: to.OwnerRef,
			Body:        fmt.Sprintf("You received %d from wallet %s", input.Amount, from.ID),
		})
	}

	return result, nil
}
