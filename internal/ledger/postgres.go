package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the ledger in PostgreSQL. Every operation runs
// inside one database transaction; wallet rows are locked with
// SELECT ... FOR UPDATE for the duration of any balance-affecting work, and
// multi-wallet operations lock in ascending wallet id order.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureWallet verifies the wallet row written by the wallet repository
// exists before the ledger posts against it.
func (s *PostgresStore) EnsureWallet(ctx context.Context, walletID string) error {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return ErrWalletNotFound
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check wallet: %w", err)
	}
	if !exists {
		return ErrWalletNotFound
	}
	return nil
}

func (s *PostgresStore) HoldDebit(ctx context.Context, walletID string, amount int64, groupID string) (string, error) {
	return s.hold(ctx, walletID, amount, groupID, TypeDebit)
}

func (s *PostgresStore) HoldCredit(ctx context.Context, walletID string, amount int64, groupID string) (string, error) {
	return s.hold(ctx, walletID, amount, groupID, TypeCredit)
}

func (s *PostgresStore) hold(ctx context.Context, walletID string, amount int64, groupID string, txType TransactionType) (string, error) {
	if amount <= 0 {
		return "", ErrAmountNotPositive
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	group, err := groupForUpdate(ctx, tx, groupID)
	if err != nil {
		return "", err
	}
	if group.Status.Terminal() {
		return "", ErrGroupFinalized
	}
	walletUUID, err := lockWallet(ctx, tx, walletID)
	if err != nil {
		return "", err
	}

	signed := amount
	if txType == TypeDebit {
		signed = -amount
	}

	rowID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, group_id, wallet_id, amount, type, status, hold_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rowID, group.ID, walletUUID, signed, txType, StatusHold, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("insert hold: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return rowID.String(), nil
}

func (s *PostgresStore) Settle(ctx context.Context, walletID, groupID string) (string, error) {
	return s.finalizeWallet(ctx, walletID, groupID, StatusSettled)
}

func (s *PostgresStore) Release(ctx context.Context, walletID, groupID string) (string, error) {
	return s.finalizeWallet(ctx, walletID, groupID, StatusReleased)
}

func (s *PostgresStore) Cancel(ctx context.Context, walletID, groupID string) (string, error) {
	return s.finalizeWallet(ctx, walletID, groupID, StatusCancelled)
}

func (s *PostgresStore) finalizeWallet(ctx context.Context, walletID, groupID string, status TransactionStatus) (string, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	group, err := groupForUpdate(ctx, tx, groupID)
	if err != nil {
		return "", err
	}
	if group.Status.Terminal() {
		return "", ErrGroupFinalized
	}
	if _, err := lockWallet(ctx, tx, walletID); err != nil {
		return "", err
	}

	rowID, err := finalizeTx(ctx, tx, walletID, groupID, status)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return rowID, nil
}

// finalizeTx appends a phase-2 row for every outstanding hold of the wallet
// within the group. A hold is outstanding while the wallet has fewer phase-2
// rows than holds in the group; the hold rows themselves are never updated.
func finalizeTx(ctx context.Context, tx pgx.Tx, walletID, groupID string, status TransactionStatus) (string, error) {
	rows, err := tx.Query(ctx, `SELECT id, amount, type, hold_at FROM transactions
        WHERE wallet_id = $1 AND group_id = $2 AND status = $3
        ORDER BY hold_at, id`, walletID, groupID, StatusHold)
	if err != nil {
		return "", fmt.Errorf("select holds: %w", err)
	}
	var holds []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Amount, &t.Type, &t.HoldAt); err != nil {
			rows.Close()
			return "", err
		}
		holds = append(holds, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}

	var finalized int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM transactions
        WHERE wallet_id = $1 AND group_id = $2 AND status <> $3`, walletID, groupID, StatusHold).Scan(&finalized); err != nil {
		return "", fmt.Errorf("count finalized: %w", err)
	}
	if finalized >= len(holds) {
		return "", ErrTransactionNotFound
	}

	now := time.Now().UTC()
	var lastID string
	for _, hold := range holds[finalized:] {
		amount, txType := hold.Amount, hold.Type
		if status != StatusSettled {
			amount = -hold.Amount
			txType = hold.Type.Flip()
		}
		rowID := uuid.New()
		if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, group_id, wallet_id, amount, type, status, hold_at, finalized_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rowID, groupID, walletID, amount, txType, status, hold.HoldAt, now); err != nil {
			return "", fmt.Errorf("insert %s: %w", status, err)
		}
		lastID = rowID.String()
	}
	return lastID, nil
}

func (s *PostgresStore) CreateGroup(ctx context.Context, ref GroupRef) (TransactionGroup, error) {
	now := time.Now().UTC()
	group := TransactionGroup{
		ID:         uuid.New().String(),
		Status:     GroupInProgress,
		MerchantID: ref.MerchantID,
		BuyerID:    ref.BuyerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.db.Exec(ctx, `INSERT INTO transaction_groups (id, status, reason, merchant_id, buyer_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		group.ID, group.Status, group.Reason, group.MerchantID, group.BuyerID, group.CreatedAt, group.UpdatedAt); err != nil {
		return TransactionGroup{}, fmt.Errorf("insert group: %w", err)
	}
	return group, nil
}

func (s *PostgresStore) Group(ctx context.Context, groupID string) (TransactionGroup, error) {
	id, err := uuid.Parse(groupID)
	if err != nil {
		return TransactionGroup{}, ErrGroupNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT id, status, reason, merchant_id, buyer_id, created_at, updated_at
        FROM transaction_groups WHERE id = $1`, id)
	return scanGroup(row)
}

func (s *PostgresStore) GroupTransactions(ctx context.Context, groupID string) ([]Transaction, error) {
	if _, err := s.Group(ctx, groupID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, group_id, wallet_id, amount, type, status, hold_at, finalized_at, COALESCE(description, '')
        FROM transactions WHERE group_id = $1 ORDER BY hold_at, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("select group transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.GroupID, &t.WalletID, &t.Amount, &t.Type, &t.Status, &t.HoldAt, &t.FinalizedAt, &t.Description); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SettleGroup(ctx context.Context, groupID string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	group, err := groupForUpdate(ctx, tx, groupID)
	if err != nil {
		return err
	}
	if group.Status.Terminal() {
		return ErrGroupFinalized
	}

	wallets, sum, err := groupHoldsTx(ctx, tx, groupID)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		// Nothing held: settling an empty group is rejected as misuse.
		return ErrTransactionNotFound
	}
	if sum != 0 {
		// The zero-sum gate. Rolling back leaves the group IN_PROGRESS so
		// the caller can cancel it or add corrective holds.
		return ErrGroupNotBalanced
	}

	for _, walletID := range wallets {
		if _, err := lockWallet(ctx, tx, walletID); err != nil {
			return err
		}
	}
	for _, walletID := range wallets {
		if _, err := finalizeTx(ctx, tx, walletID, groupID, StatusSettled); err != nil {
			return err
		}
	}

	if err := flipGroupTx(ctx, tx, groupID, GroupSettled, ""); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ReleaseGroup(ctx context.Context, groupID, reason string) error {
	return s.offsetGroup(ctx, groupID, reason, StatusReleased, GroupReleased)
}

func (s *PostgresStore) CancelGroup(ctx context.Context, groupID, reason string) error {
	return s.offsetGroup(ctx, groupID, reason, StatusCancelled, GroupCancelled)
}

func (s *PostgresStore) offsetGroup(ctx context.Context, groupID, reason string, rowStatus TransactionStatus, groupStatus GroupStatus) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	group, err := groupForUpdate(ctx, tx, groupID)
	if err != nil {
		return err
	}
	if group.Status.Terminal() {
		return ErrGroupFinalized
	}

	wallets, _, err := groupHoldsTx(ctx, tx, groupID)
	if err != nil {
		return err
	}
	for _, walletID := range wallets {
		if _, err := lockWallet(ctx, tx, walletID); err != nil {
			return err
		}
	}
	for _, walletID := range wallets {
		if _, err := finalizeTx(ctx, tx, walletID, groupID, rowStatus); err != nil {
			return err
		}
	}

	if err := flipGroupTx(ctx, tx, groupID, groupStatus, reason); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Transfer(ctx context.Context, senderID, recipientID string, amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrAmountNotPositive
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Ascending id order keeps concurrent transfers over the same pair from
	// deadlocking.
	ordered := []string{senderID, recipientID}
	sort.Strings(ordered)
	for _, walletID := range ordered {
		if _, err := lockWallet(ctx, tx, walletID); err != nil {
			return "", err
		}
	}

	now := time.Now().UTC()
	groupID := uuid.New().String()
	if _, err := tx.Exec(ctx, `INSERT INTO transaction_groups (id, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4)`, groupID, GroupInProgress, now, now); err != nil {
		return "", fmt.Errorf("insert group: %w", err)
	}

	post := func(walletID string, signed int64, txType TransactionType, status TransactionStatus, finalized *time.Time) error {
		_, err := tx.Exec(ctx, `INSERT INTO transactions (id, group_id, wallet_id, amount, type, status, hold_at, finalized_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), groupID, walletID, signed, txType, status, now, finalized)
		return err
	}

	if err := post(senderID, -amount, TypeDebit, StatusHold, nil); err != nil {
		return "", fmt.Errorf("hold debit: %w", err)
	}
	if err := post(recipientID, amount, TypeCredit, StatusHold, nil); err != nil {
		return "", fmt.Errorf("hold credit: %w", err)
	}
	if err := post(senderID, -amount, TypeDebit, StatusSettled, &now); err != nil {
		return "", fmt.Errorf("settle debit: %w", err)
	}
	if err := post(recipientID, amount, TypeCredit, StatusSettled, &now); err != nil {
		return "", fmt.Errorf("settle credit: %w", err)
	}

	if err := flipGroupTx(ctx, tx, groupID, GroupSettled, ""); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return groupID, nil
}

func (s *PostgresStore) AvailableBalance(ctx context.Context, walletID string) (int64, error) {
	var available int64
	err := s.withWalletLock(ctx, walletID, func(tx pgx.Tx) error {
		settled, err := settledTx(ctx, tx, walletID)
		if err != nil {
			return err
		}
		held, err := heldTx(ctx, tx, walletID)
		if err != nil {
			return err
		}
		// Held debit amounts are already negative, so the reduction is an
		// addition, never a double subtraction.
		available = settled + held
		return nil
	})
	return available, err
}

func (s *PostgresStore) SettledBalance(ctx context.Context, walletID string) (int64, error) {
	var settled int64
	err := s.withWalletLock(ctx, walletID, func(tx pgx.Tx) error {
		var err error
		settled, err = settledTx(ctx, tx, walletID)
		return err
	})
	return settled, err
}

func (s *PostgresStore) HeldBalance(ctx context.Context, walletID string) (int64, error) {
	var held int64
	err := s.withWalletLock(ctx, walletID, func(tx pgx.Tx) error {
		var err error
		held, err = heldTx(ctx, tx, walletID)
		return err
	})
	return held, err
}

// withWalletLock runs fn inside a transaction holding the wallet's exclusive
// row lock. Balance reads take the same lock as writes so they never observe
// a half-finalized group.
func (s *PostgresStore) withWalletLock(ctx context.Context, walletID string, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := lockWallet(ctx, tx, walletID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// settledTx merges the active and warm tiers as two explicit sums. A row
// exists in exactly one tier at any time, so adding the sums never counts a
// row twice. Checkpoint rows carry the settled status and the consolidated
// balance of archived history, keeping the total complete.
func settledTx(ctx context.Context, tx pgx.Tx, walletID string) (int64, error) {
	var active, warm int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions
        WHERE wallet_id = $1 AND status = $2`, walletID, StatusSettled).Scan(&active); err != nil {
		return 0, fmt.Errorf("sum active settled: %w", err)
	}
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transaction_snapshots
        WHERE wallet_id = $1 AND status = $2`, walletID, StatusSettled).Scan(&warm); err != nil {
		return 0, fmt.Errorf("sum warm settled: %w", err)
	}
	return active + warm, nil
}

// heldTx sums debit holds whose group is still in progress. Credit-side holds
// are incoming funds that are not real yet and never reduce availability.
func heldTx(ctx context.Context, tx pgx.Tx, walletID string) (int64, error) {
	var held int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(t.amount), 0)
        FROM transactions t
        JOIN transaction_groups g ON g.id = t.group_id
        WHERE t.wallet_id = $1 AND t.status = $2 AND t.type = $3 AND g.status = $4`,
		walletID, StatusHold, TypeDebit, GroupInProgress).Scan(&held); err != nil {
		return 0, fmt.Errorf("sum holds: %w", err)
	}
	return held, nil
}

func lockWallet(ctx context.Context, tx pgx.Tx, walletID string) (uuid.UUID, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return uuid.Nil, ErrWalletNotFound
	}
	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM wallets WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrWalletNotFound
		}
		return uuid.Nil, fmt.Errorf("lock wallet: %w", err)
	}
	return locked, nil
}

func groupForUpdate(ctx context.Context, tx pgx.Tx, groupID string) (TransactionGroup, error) {
	id, err := uuid.Parse(groupID)
	if err != nil {
		return TransactionGroup{}, ErrGroupNotFound
	}
	row := tx.QueryRow(ctx, `SELECT id, status, reason, merchant_id, buyer_id, created_at, updated_at
        FROM transaction_groups WHERE id = $1 FOR UPDATE`, id)
	return scanGroup(row)
}

func scanGroup(row pgx.Row) (TransactionGroup, error) {
	var g TransactionGroup
	var id uuid.UUID
	if err := row.Scan(&id, &g.Status, &g.Reason, &g.MerchantID, &g.BuyerID, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TransactionGroup{}, ErrGroupNotFound
		}
		return TransactionGroup{}, err
	}
	g.ID = id.String()
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g, nil
}

// groupHoldsTx returns the distinct wallets holding within the group, in
// ascending wallet id order, and the sum of all held amounts.
func groupHoldsTx(ctx context.Context, tx pgx.Tx, groupID string) ([]string, int64, error) {
	var sum int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions
        WHERE group_id = $1 AND status = $2`, groupID, StatusHold).Scan(&sum); err != nil {
		return nil, 0, fmt.Errorf("sum group holds: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT DISTINCT wallet_id FROM transactions
        WHERE group_id = $1 AND status = $2 ORDER BY wallet_id`, groupID, StatusHold)
	if err != nil {
		return nil, 0, fmt.Errorf("select group wallets: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, 0, err
		}
		wallets = append(wallets, id.String())
	}
	return wallets, sum, rows.Err()
}

// flipGroupTx performs the one allowed mutation in the data model: the group
// status transition, guarded so a terminal group can never move again.
func flipGroupTx(ctx context.Context, tx pgx.Tx, groupID string, status GroupStatus, reason string) error {
	tag, err := tx.Exec(ctx, `UPDATE transaction_groups SET status = $2, reason = $3, updated_at = $4
        WHERE id = $1 AND status = $5`, groupID, status, reason, time.Now().UTC(), GroupInProgress)
	if err != nil {
		return fmt.Errorf("update group status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrGroupFinalized
	}
	return nil
}
