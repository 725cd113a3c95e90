package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CaptureDailySnapshot moves the wallet's rows belonging to terminal groups
// from the active tier to the warm tier. Copy and delete run in one database
// transaction with the wallet locked; the counts must match or the whole unit
// rolls back. Rows of in-progress groups are never selected.
func (s *PostgresStore) CaptureDailySnapshot(ctx context.Context, walletID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := lockWallet(ctx, tx, walletID); err != nil {
		return 0, err
	}

	copyTag, err := tx.Exec(ctx, `INSERT INTO transaction_snapshots
        (id, group_id, wallet_id, amount, type, status, hold_at, finalized_at, description, snapshot_at, is_ledger_entry)
        SELECT t.id, t.group_id, t.wallet_id, t.amount, t.type, t.status, t.hold_at, t.finalized_at, t.description, $3, FALSE
        FROM transactions t
        JOIN transaction_groups g ON g.id = t.group_id
        WHERE t.wallet_id = $1 AND g.status <> $2`,
		walletID, GroupInProgress, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("copy to warm tier: %w", err)
	}

	deleteTag, err := tx.Exec(ctx, `DELETE FROM transactions t
        USING transaction_groups g
        WHERE g.id = t.group_id AND t.wallet_id = $1 AND g.status <> $2`,
		walletID, GroupInProgress)
	if err != nil {
		return 0, fmt.Errorf("delete from active tier: %w", err)
	}

	if copyTag.RowsAffected() != deleteTag.RowsAffected() {
		return 0, fmt.Errorf("%w: copied %d, deleted %d",
			ErrVerificationFailed, copyTag.RowsAffected(), deleteTag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(copyTag.RowsAffected()), nil
}

// ArchiveOldSnapshots consolidates the wallet's aged warm rows into one
// checkpoint carrying their cumulative balance, records a tracking link per
// consolidated group, and moves the raw rows to the cold tier. The checkpoint,
// the links, the copy and the delete commit together or not at all: a
// checkpoint without its matching archive would silently distort the balance.
func (s *PostgresStore) ArchiveOldSnapshots(ctx context.Context, walletID string, olderThan time.Time) (ArchiveResult, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ArchiveResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := lockWallet(ctx, tx, walletID); err != nil {
		return ArchiveResult{}, err
	}

	const selected = `wallet_id = $1 AND is_ledger_entry = FALSE AND status = $2 AND snapshot_at < $3`

	var sum int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transaction_snapshots WHERE `+selected,
		walletID, StatusSettled, olderThan).Scan(&sum); err != nil {
		return ArchiveResult{}, fmt.Errorf("sum aged rows: %w", err)
	}
	if sum == 0 {
		// Nothing economically significant to consolidate; the aged rows
		// stay in the warm tier until a later pass.
		return ArchiveResult{Skipped: true}, nil
	}

	now := time.Now().UTC()
	checkpointID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transaction_snapshots
        (id, group_id, wallet_id, amount, type, status, hold_at, finalized_at, description, snapshot_at, is_ledger_entry)
        VALUES ($1, NULL, $2, $3, $4, $5, $6, $6, $7, $6, TRUE)`,
		checkpointID, walletID, sum, TypeLedger, StatusSettled, now, "consolidated ledger checkpoint"); err != nil {
		return ArchiveResult{}, fmt.Errorf("insert checkpoint: %w", err)
	}

	linkTag, err := tx.Exec(ctx, `INSERT INTO ledger_checkpoint_tracking (checkpoint_id, group_id)
        SELECT DISTINCT $4::uuid, group_id FROM transaction_snapshots
        WHERE `+selected+` AND group_id IS NOT NULL`,
		walletID, StatusSettled, olderThan, checkpointID)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("insert tracking links: %w", err)
	}

	copyTag, err := tx.Exec(ctx, `INSERT INTO transaction_snapshot_archive
        (id, group_id, wallet_id, amount, type, status, hold_at, finalized_at, description, snapshot_at, is_ledger_entry)
        SELECT id, group_id, wallet_id, amount, type, status, hold_at, finalized_at, description, snapshot_at, is_ledger_entry
        FROM transaction_snapshots WHERE `+selected,
		walletID, StatusSettled, olderThan)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("copy to cold tier: %w", err)
	}

	deleteTag, err := tx.Exec(ctx, `DELETE FROM transaction_snapshots WHERE `+selected,
		walletID, StatusSettled, olderThan)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("delete from warm tier: %w", err)
	}

	if copyTag.RowsAffected() != deleteTag.RowsAffected() {
		return ArchiveResult{}, fmt.Errorf("%w: archived %d, deleted %d",
			ErrVerificationFailed, copyTag.RowsAffected(), deleteTag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return ArchiveResult{}, err
	}

	return ArchiveResult{
		CheckpointID: checkpointID.String(),
		Amount:       sum,
		RowsArchived: int(copyTag.RowsAffected()),
		GroupsLinked: int(linkTag.RowsAffected()),
	}, nil
}

// CheckpointGroups expands a checkpoint into the group ids it consolidated.
func (s *PostgresStore) CheckpointGroups(ctx context.Context, checkpointID string) ([]string, error) {
	id, err := uuid.Parse(checkpointID)
	if err != nil {
		return nil, ErrTransactionNotFound
	}
	rows, err := s.db.Query(ctx, `SELECT group_id FROM ledger_checkpoint_tracking
        WHERE checkpoint_id = $1 ORDER BY group_id`, id)
	if err != nil {
		return nil, fmt.Errorf("select tracking links: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var groupID uuid.UUID
		if err := rows.Scan(&groupID); err != nil {
			return nil, err
		}
		groups = append(groups, groupID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, ErrTransactionNotFound
	}
	return groups, nil
}
