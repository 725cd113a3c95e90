package ledger

import (
	"context"
	"time"
)

// Ledger is the double-entry core: two-phase holds, group settlement with
// zero-sum validation, and balance computation across the active and warm
// tiers.
//
// Every write is an insert. A hold is finalized by appending a second row for
// the same wallet and group, never by touching the hold row. Release and
// cancel rows carry the amount negated and the type flipped so a hold and its
// offset net to zero.
//
// Hold operations do not check balance sufficiency. Sufficiency is a caller
// policy; the zero-sum gate at settle time is what keeps settled state free
// of money creation or destruction.
type Ledger interface {
	// EnsureWallet guarantees the ledger knows the wallet before it is used
	// in a posting.
	EnsureWallet(ctx context.Context, walletID string) error

	// HoldDebit reserves amount out of the wallet: a HOLD row with the
	// amount stored negative. Returns the new transaction id.
	HoldDebit(ctx context.Context, walletID string, amount int64, groupID string) (string, error)
	// HoldCredit reserves amount into the wallet: a HOLD row with the amount
	// stored positive. Returns the new transaction id.
	HoldCredit(ctx context.Context, walletID string, amount int64, groupID string) (string, error)

	// Settle appends SETTLED rows copying the outstanding holds for the
	// wallet within the group. Fails with ErrTransactionNotFound when no
	// outstanding hold exists.
	Settle(ctx context.Context, walletID, groupID string) (string, error)
	// Release appends offsetting RELEASED rows for the wallet's outstanding
	// holds. Used to reverse a hold after a dispute.
	Release(ctx context.Context, walletID, groupID string) (string, error)
	// Cancel appends offsetting CANCELLED rows for the wallet's outstanding
	// holds. Mechanically identical to Release; only the recorded status
	// differs.
	Cancel(ctx context.Context, walletID, groupID string) (string, error)

	// CreateGroup allocates a new IN_PROGRESS group.
	CreateGroup(ctx context.Context, ref GroupRef) (TransactionGroup, error)
	// Group returns group metadata.
	Group(ctx context.Context, groupID string) (TransactionGroup, error)
	// GroupTransactions returns every active-tier row belonging to the group,
	// oldest first.
	GroupTransactions(ctx context.Context, groupID string) ([]Transaction, error)

	// SettleGroup validates that the group's held amounts sum to exactly
	// zero, settles every member wallet, and flips the group to SETTLED. On
	// ErrGroupNotBalanced the group is left IN_PROGRESS untouched.
	SettleGroup(ctx context.Context, groupID string) error
	// ReleaseGroup offsets every member hold and flips the group to RELEASED.
	ReleaseGroup(ctx context.Context, groupID, reason string) error
	// CancelGroup offsets every member hold and flips the group to CANCELLED.
	CancelGroup(ctx context.Context, groupID, reason string) error

	// Transfer moves amount between two wallets as one atomic unit: group
	// creation, both holds and settlement either all commit or none do.
	// Returns the group id.
	Transfer(ctx context.Context, senderID, recipientID string, amount int64) (string, error)

	// AvailableBalance returns settled balance minus in-progress debit holds.
	// Settled rows are summed across the active and warm tiers; a row lives
	// in exactly one tier at a time, so the two sums never overlap.
	AvailableBalance(ctx context.Context, walletID string) (int64, error)
	// SettledBalance returns only the settled portion across both tiers.
	SettledBalance(ctx context.Context, walletID string) (int64, error)
	// HeldBalance returns the sum of in-progress debit holds. The value is
	// negative or zero by the sign convention.
	HeldBalance(ctx context.Context, walletID string) (int64, error)
}

// Tiering moves completed history down the storage tiers. Both operations are
// count-verified and all-or-nothing, and both are balance-neutral: available
// balance reads identically before and after a pass.
type Tiering interface {
	// CaptureDailySnapshot moves the wallet's rows whose group reached a
	// terminal state from the active tier to the warm tier. Returns the
	// number of rows moved. Safe to re-run: migrated rows are gone from the
	// active tier and will not be selected again.
	CaptureDailySnapshot(ctx context.Context, walletID string) (int, error)

	// ArchiveOldSnapshots consolidates warm rows older than the cutoff into
	// a single checkpoint row, links the checkpoint to every group it
	// absorbed, and moves the raw rows to the cold tier. A zero cumulative
	// balance skips the pass entirely.
	ArchiveOldSnapshots(ctx context.Context, walletID string, olderThan time.Time) (ArchiveResult, error)

	// CheckpointGroups expands a checkpoint back into the group ids it
	// consolidated, for audit against the cold tier.
	CheckpointGroups(ctx context.Context, checkpointID string) ([]string, error)
}

// Store is the full contract a ledger backend implements.
type Store interface {
	Ledger
	Tiering
}
