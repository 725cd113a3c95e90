package ledger

import "errors"

var (
	// ErrWalletNotFound occurs when an operation references a wallet the
	// ledger does not know.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrTransactionNotFound occurs when a settle/release/cancel finds no
	// outstanding hold for the given wallet and group.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrGroupNotFound occurs when a group id does not exist.
	ErrGroupNotFound = errors.New("transaction group not found")

	// ErrGroupFinalized occurs when an operation targets a group that has
	// already reached a terminal state.
	ErrGroupFinalized = errors.New("transaction group already finalized")

	// ErrGroupNotBalanced occurs when the held amounts of a group do not sum
	// to zero at settle time. The group is left untouched so the caller can
	// cancel it or add corrective holds.
	ErrGroupNotBalanced = errors.New("transaction group does not balance to zero")

	// ErrInsufficientFunds occurs when the sufficiency policy is enabled and
	// the source wallet lacks available balance. No row is written.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAmountNotPositive occurs when a hold amount is zero or negative.
	ErrAmountNotPositive = errors.New("amount must be positive")

	// ErrVerificationFailed occurs when a tier migration's written and
	// deleted row counts disagree. The whole batch unit is rolled back and
	// safe to retry.
	ErrVerificationFailed = errors.New("tier migration verification failed")
)
