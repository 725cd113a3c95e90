package ledger

import "time"

// TransactionStatus is the lifecycle phase recorded on a ledger row.
type TransactionStatus string

const (
	// StatusHold reserves funds without finalizing them.
	StatusHold TransactionStatus = "HOLD"
	// StatusSettled finalizes a held amount.
	StatusSettled TransactionStatus = "SETTLED"
	// StatusReleased reverses a hold after settlement conditions failed.
	StatusReleased TransactionStatus = "RELEASED"
	// StatusCancelled reverses a hold before settlement was attempted.
	StatusCancelled TransactionStatus = "CANCELLED"
)

// TransactionType classifies the direction of a ledger row.
type TransactionType string

const (
	TypeDebit  TransactionType = "DEBIT"
	TypeCredit TransactionType = "CREDIT"
	// TypeLedger marks a consolidation checkpoint row carrying the cumulative
	// balance of archived history. Checkpoint rows belong to no group.
	TypeLedger TransactionType = "LEDGER"
)

// Flip returns the opposite direction. Checkpoint rows are never offset, so
// LEDGER flips to itself.
func (t TransactionType) Flip() TransactionType {
	switch t {
	case TypeDebit:
		return TypeCredit
	case TypeCredit:
		return TypeDebit
	default:
		return t
	}
}

// GroupStatus tracks the one-way lifecycle of a transaction group.
type GroupStatus string

const (
	GroupInProgress GroupStatus = "IN_PROGRESS"
	GroupSettled    GroupStatus = "SETTLED"
	GroupReleased   GroupStatus = "RELEASED"
	GroupCancelled  GroupStatus = "CANCELLED"
)

// Terminal reports whether the group can no longer change state.
func (s GroupStatus) Terminal() bool {
	return s == GroupSettled || s == GroupReleased || s == GroupCancelled
}

// Transaction is an append-only ledger fact. Once persisted it is never
// updated or deleted in the active and warm tiers; every state change is a
// new row. Amounts are signed minor currency units: debits negative, credits
// positive, zero never allowed.
type Transaction struct {
	ID          string
	GroupID     string // empty only on checkpoint rows
	WalletID    string
	Amount      int64
	Type        TransactionType
	Status      TransactionStatus
	HoldAt      time.Time
	FinalizedAt *time.Time
	Description string
}

// TransactionGroup is the atomic unit of settlement. Its status field is the
// only mutable value in the data model: IN_PROGRESS transitions to exactly
// one terminal state and never back.
type TransactionGroup struct {
	ID         string
	Status     GroupStatus
	Reason     string
	MerchantID string
	BuyerID    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GroupRef carries optional linkage recorded when a group is created.
type GroupRef struct {
	MerchantID string
	BuyerID    string
}

// Snapshot is a warm- or cold-tier copy of a transaction row, stamped with
// the time it left the active tier. IsLedgerEntry marks checkpoint rows
// produced by archive consolidation.
type Snapshot struct {
	Transaction
	SnapshotAt    time.Time
	IsLedgerEntry bool
}

// ArchiveResult describes the outcome of an archive pass over one wallet.
type ArchiveResult struct {
	// Skipped is set when the aged warm rows summed to zero and nothing was
	// consolidated. That is an expected outcome, not an error.
	Skipped      bool
	CheckpointID string
	Amount       int64
	RowsArchived int
	GroupsLinked int
}
