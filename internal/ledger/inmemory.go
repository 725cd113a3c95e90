package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryStore struct {
	mu       sync.Mutex
	wallets  map[string]struct{}
	groups   map[string]TransactionGroup
	active   []Transaction
	warm     []Snapshot
	cold     []Snapshot
	tracking map[string][]string
}

// NewInMemory creates a concurrency-safe in-memory store implementing the
// full ledger and tiering contract. Useful for unit tests and dev mode.
func NewInMemory() Store {
	return &inMemoryStore{
		wallets:  make(map[string]struct{}),
		groups:   make(map[string]TransactionGroup),
		tracking: make(map[string][]string),
	}
}

func (s *inMemoryStore) EnsureWallet(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[walletID] = struct{}{}
	return nil
}

func (s *inMemoryStore) HoldDebit(_ context.Context, walletID string, amount int64, groupID string) (string, error) {
	return s.hold(walletID, amount, groupID, TypeDebit)
}

func (s *inMemoryStore) HoldCredit(_ context.Context, walletID string, amount int64, groupID string) (string, error) {
	return s.hold(walletID, amount, groupID, TypeCredit)
}

func (s *inMemoryStore) hold(walletID string, amount int64, groupID string, txType TransactionType) (string, error) {
	if amount <= 0 {
		return "", ErrAmountNotPositive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return "", ErrWalletNotFound
	}
	group, ok := s.groups[groupID]
	if !ok {
		return "", ErrGroupNotFound
	}
	if group.Status.Terminal() {
		return "", ErrGroupFinalized
	}

	signed := amount
	if txType == TypeDebit {
		signed = -amount
	}

	row := Transaction{
		ID:       uuid.NewString(),
		GroupID:  groupID,
		WalletID: walletID,
		Amount:   signed,
		Type:     txType,
		Status:   StatusHold,
		HoldAt:   time.Now().UTC(),
	}
	s.active = append(s.active, row)
	return row.ID, nil
}

func (s *inMemoryStore) Settle(ctx context.Context, walletID, groupID string) (string, error) {
	return s.finalize(walletID, groupID, StatusSettled)
}

func (s *inMemoryStore) Release(ctx context.Context, walletID, groupID string) (string, error) {
	return s.finalize(walletID, groupID, StatusReleased)
}

func (s *inMemoryStore) Cancel(ctx context.Context, walletID, groupID string) (string, error) {
	return s.finalize(walletID, groupID, StatusCancelled)
}

func (s *inMemoryStore) finalize(walletID, groupID string, status TransactionStatus) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return "", ErrGroupNotFound
	}
	if group.Status.Terminal() {
		return "", ErrGroupFinalized
	}
	return s.finalizeLocked(walletID, groupID, status)
}

// finalizeLocked appends a phase-2 row for every outstanding hold of the
// wallet within the group. Settlement copies the hold; release and cancel
// append the offset (amount negated, type flipped). The hold rows themselves
// are never touched.
func (s *inMemoryStore) finalizeLocked(walletID, groupID string, status TransactionStatus) (string, error) {
	rows, err := s.finalizeRowsLocked(walletID, groupID, status)
	if err != nil {
		return "", err
	}
	s.active = append(s.active, rows...)
	return rows[len(rows)-1].ID, nil
}

// finalizeRowsLocked builds the wallet's phase-2 rows without appending them,
// so multi-wallet operations can stage every wallet's rows and commit them in
// one step or not at all.
func (s *inMemoryStore) finalizeRowsLocked(walletID, groupID string, status TransactionStatus) ([]Transaction, error) {
	if _, ok := s.wallets[walletID]; !ok {
		return nil, ErrWalletNotFound
	}
	holds := s.outstandingHoldsLocked(walletID, groupID)
	if len(holds) == 0 {
		return nil, ErrTransactionNotFound
	}

	now := time.Now().UTC()
	rows := make([]Transaction, 0, len(holds))
	for _, hold := range holds {
		row := Transaction{
			ID:          uuid.NewString(),
			GroupID:     groupID,
			WalletID:    walletID,
			Amount:      hold.Amount,
			Type:        hold.Type,
			Status:      status,
			HoldAt:      hold.HoldAt,
			FinalizedAt: &now,
		}
		if status != StatusSettled {
			row.Amount = -hold.Amount
			row.Type = hold.Type.Flip()
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// outstandingHoldsLocked returns the group's hold rows for the wallet that
// have not been finalized yet. Finalization is append-only, so a hold counts
// as outstanding while the wallet has fewer phase-2 rows than holds in that
// group.
func (s *inMemoryStore) outstandingHoldsLocked(walletID, groupID string) []Transaction {
	var holds []Transaction
	finalized := 0
	for _, row := range s.active {
		if row.WalletID != walletID || row.GroupID != groupID {
			continue
		}
		if row.Status == StatusHold {
			holds = append(holds, row)
		} else {
			finalized++
		}
	}
	if finalized >= len(holds) {
		return nil
	}
	return holds[finalized:]
}

func (s *inMemoryStore) CreateGroup(_ context.Context, ref GroupRef) (TransactionGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	group := TransactionGroup{
		ID:         uuid.NewString(),
		Status:     GroupInProgress,
		MerchantID: ref.MerchantID,
		BuyerID:    ref.BuyerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.groups[group.ID] = group
	return group, nil
}

func (s *inMemoryStore) Group(_ context.Context, groupID string) (TransactionGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return TransactionGroup{}, ErrGroupNotFound
	}
	return group, nil
}

func (s *inMemoryStore) GroupTransactions(_ context.Context, groupID string) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return nil, ErrGroupNotFound
	}
	var rows []Transaction
	for _, row := range s.active {
		if row.GroupID == groupID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (s *inMemoryStore) SettleGroup(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if group.Status.Terminal() {
		return ErrGroupFinalized
	}

	wallets, sum := s.groupHoldsLocked(groupID)
	if len(wallets) == 0 {
		// A group with no holds has nothing to settle. Rejected rather than
		// settled vacuously.
		return ErrTransactionNotFound
	}
	if sum != 0 {
		return ErrGroupNotBalanced
	}

	// Stage every wallet's rows first; a failure on any wallet must leave
	// nothing behind.
	var staged []Transaction
	for _, walletID := range wallets {
		rows, err := s.finalizeRowsLocked(walletID, groupID, StatusSettled)
		if err != nil {
			return err
		}
		staged = append(staged, rows...)
	}
	s.active = append(s.active, staged...)

	group.Status = GroupSettled
	group.UpdatedAt = time.Now().UTC()
	s.groups[groupID] = group
	return nil
}

func (s *inMemoryStore) ReleaseGroup(_ context.Context, groupID, reason string) error {
	return s.offsetGroup(groupID, reason, StatusReleased, GroupReleased)
}

func (s *inMemoryStore) CancelGroup(_ context.Context, groupID, reason string) error {
	return s.offsetGroup(groupID, reason, StatusCancelled, GroupCancelled)
}

func (s *inMemoryStore) offsetGroup(groupID, reason string, rowStatus TransactionStatus, groupStatus GroupStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if group.Status.Terminal() {
		return ErrGroupFinalized
	}

	wallets, _ := s.groupHoldsLocked(groupID)
	var staged []Transaction
	for _, walletID := range wallets {
		rows, err := s.finalizeRowsLocked(walletID, groupID, rowStatus)
		if err != nil {
			return err
		}
		staged = append(staged, rows...)
	}
	s.active = append(s.active, staged...)

	group.Status = groupStatus
	group.Reason = reason
	group.UpdatedAt = time.Now().UTC()
	s.groups[groupID] = group
	return nil
}

// groupHoldsLocked returns the distinct wallets holding within the group, in
// ascending wallet id order, and the sum of all held amounts.
func (s *inMemoryStore) groupHoldsLocked(groupID string) ([]string, int64) {
	seen := make(map[string]struct{})
	var wallets []string
	var sum int64
	for _, row := range s.active {
		if row.GroupID != groupID || row.Status != StatusHold {
			continue
		}
		sum += row.Amount
		if _, ok := seen[row.WalletID]; !ok {
			seen[row.WalletID] = struct{}{}
			wallets = append(wallets, row.WalletID)
		}
	}
	sort.Strings(wallets)
	return wallets, sum
}

func (s *inMemoryStore) Transfer(_ context.Context, senderID, recipientID string, amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrAmountNotPositive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[senderID]; !ok {
		return "", ErrWalletNotFound
	}
	if _, ok := s.wallets[recipientID]; !ok {
		return "", ErrWalletNotFound
	}

	now := time.Now().UTC()
	group := TransactionGroup{
		ID:        uuid.NewString(),
		Status:    GroupSettled,
		CreatedAt: now,
		UpdatedAt: now,
	}

	rows := []Transaction{
		{ID: uuid.NewString(), GroupID: group.ID, WalletID: senderID, Amount: -amount, Type: TypeDebit, Status: StatusHold, HoldAt: now},
		{ID: uuid.NewString(), GroupID: group.ID, WalletID: recipientID, Amount: amount, Type: TypeCredit, Status: StatusHold, HoldAt: now},
		{ID: uuid.NewString(), GroupID: group.ID, WalletID: senderID, Amount: -amount, Type: TypeDebit, Status: StatusSettled, HoldAt: now, FinalizedAt: &now},
		{ID: uuid.NewString(), GroupID: group.ID, WalletID: recipientID, Amount: amount, Type: TypeCredit, Status: StatusSettled, HoldAt: now, FinalizedAt: &now},
	}

	// All four rows and the group land together; nothing was appended before
	// this point, so any earlier failure left no partial state.
	s.groups[group.ID] = group
	s.active = append(s.active, rows...)
	return group.ID, nil
}

func (s *inMemoryStore) AvailableBalance(_ context.Context, walletID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return 0, ErrWalletNotFound
	}
	// Held debit amounts are already negative, so the hold reduction is an
	// addition, never a double subtraction.
	return s.settledLocked(walletID) + s.heldLocked(walletID), nil
}

func (s *inMemoryStore) SettledBalance(_ context.Context, walletID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return 0, ErrWalletNotFound
	}
	return s.settledLocked(walletID), nil
}

func (s *inMemoryStore) HeldBalance(_ context.Context, walletID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return 0, ErrWalletNotFound
	}
	return s.heldLocked(walletID), nil
}

// settledLocked merges the active and warm tiers. A row exists in exactly one
// tier at any time, so the two sums never count anything twice. Checkpoint
// rows carry the settled status and the consolidated balance of the history
// they replaced, which keeps the sum complete after archiving.
func (s *inMemoryStore) settledLocked(walletID string) int64 {
	var sum int64
	for _, row := range s.active {
		if row.WalletID == walletID && row.Status == StatusSettled {
			sum += row.Amount
		}
	}
	for _, row := range s.warm {
		if row.WalletID == walletID && row.Status == StatusSettled {
			sum += row.Amount
		}
	}
	return sum
}

// heldLocked sums debit holds whose group is still in progress. Credit-side
// holds represent incoming funds that are not real yet and never reduce the
// available balance.
func (s *inMemoryStore) heldLocked(walletID string) int64 {
	var sum int64
	for _, row := range s.active {
		if row.WalletID != walletID || row.Status != StatusHold || row.Type != TypeDebit {
			continue
		}
		if group, ok := s.groups[row.GroupID]; ok && group.Status == GroupInProgress {
			sum += row.Amount
		}
	}
	return sum
}

func (s *inMemoryStore) CaptureDailySnapshot(_ context.Context, walletID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return 0, ErrWalletNotFound
	}

	now := time.Now().UTC()
	var remaining []Transaction
	var migrated []Snapshot
	for _, row := range s.active {
		group, ok := s.groups[row.GroupID]
		if row.WalletID == walletID && ok && group.Status.Terminal() {
			migrated = append(migrated, Snapshot{Transaction: row, SnapshotAt: now})
			continue
		}
		remaining = append(remaining, row)
	}

	if copied, deleted := len(migrated), len(s.active)-len(remaining); copied != deleted {
		return 0, ErrVerificationFailed
	}

	s.warm = append(s.warm, migrated...)
	s.active = remaining
	return len(migrated), nil
}

func (s *inMemoryStore) ArchiveOldSnapshots(_ context.Context, walletID string, olderThan time.Time) (ArchiveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return ArchiveResult{}, ErrWalletNotFound
	}

	var selected []Snapshot
	var sum int64
	for _, row := range s.warm {
		if row.WalletID == walletID && !row.IsLedgerEntry && row.Status == StatusSettled && row.SnapshotAt.Before(olderThan) {
			selected = append(selected, row)
			sum += row.Amount
		}
	}
	if sum == 0 {
		return ArchiveResult{Skipped: true}, nil
	}

	now := time.Now().UTC()
	checkpoint := Snapshot{
		Transaction: Transaction{
			ID:          uuid.NewString(),
			WalletID:    walletID,
			Amount:      sum,
			Type:        TypeLedger,
			Status:      StatusSettled,
			HoldAt:      now,
			FinalizedAt: &now,
			Description: "consolidated ledger checkpoint",
		},
		SnapshotAt:    now,
		IsLedgerEntry: true,
	}

	groups := make(map[string]struct{})
	inSelected := make(map[string]struct{}, len(selected))
	for _, row := range selected {
		groups[row.GroupID] = struct{}{}
		inSelected[row.ID] = struct{}{}
	}
	links := make([]string, 0, len(groups))
	for groupID := range groups {
		links = append(links, groupID)
	}
	sort.Strings(links)

	var remaining []Snapshot
	for _, row := range s.warm {
		if _, ok := inSelected[row.ID]; ok {
			continue
		}
		remaining = append(remaining, row)
	}

	if archived, deleted := len(selected), len(s.warm)-len(remaining); archived != deleted {
		return ArchiveResult{}, ErrVerificationFailed
	}

	s.warm = append(remaining, checkpoint)
	s.cold = append(s.cold, selected...)
	s.tracking[checkpoint.ID] = links

	return ArchiveResult{
		CheckpointID: checkpoint.ID,
		Amount:       sum,
		RowsArchived: len(selected),
		GroupsLinked: len(links),
	}, nil
}

func (s *inMemoryStore) CheckpointGroups(_ context.Context, checkpointID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	links, ok := s.tracking[checkpointID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	out := make([]string, len(links))
	copy(out, links)
	return out, nil
}
