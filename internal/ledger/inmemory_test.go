package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nosota/mwallet/internal/ledger"
)

func newStore(t *testing.T, walletIDs ...string) ledger.Store {
	t.Helper()
	store := ledger.NewInMemory()
	for _, id := range walletIDs {
		ledger.SeedWallet(store, id)
	}
	return store
}

func TestHoldSettleAppendsRows(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "buyer", "merchant")

	group, err := store.CreateGroup(ctx, ledger.GroupRef{MerchantID: "merchant", BuyerID: "buyer"})
	require.NoError(t, err)
	require.Equal(t, ledger.GroupInProgress, group.Status)

	_, err = store.HoldDebit(ctx, "buyer", 100, group.ID)
	require.NoError(t, err)
	_, err = store.HoldCredit(ctx, "merchant", 100, group.ID)
	require.NoError(t, err)

	require.NoError(t, store.SettleGroup(ctx, group.ID))

	settled, err := store.Group(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.GroupSettled, settled.Status)

	// The hold rows are untouched; settlement is a second row per hold.
	buyerRows := ledger.ActiveRows(store, "buyer")
	require.Len(t, buyerRows, 2)
	assert.Equal(t, ledger.StatusHold, buyerRows[0].Status)
	assert.Equal(t, int64(-100), buyerRows[0].Amount)
	assert.Equal(t, ledger.StatusSettled, buyerRows[1].Status)
	assert.Equal(t, int64(-100), buyerRows[1].Amount)
	assert.Equal(t, ledger.TypeDebit, buyerRows[1].Type)
	assert.NotNil(t, buyerRows[1].FinalizedAt)

	buyerBalance, err := store.AvailableBalance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(-100), buyerBalance)

	merchantBalance, err := store.AvailableBalance(ctx, "merchant")
	require.NoError(t, err)
	assert.Equal(t, int64(100), merchantBalance)
}

func TestReleaseAppendsOffsettingRow(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "buyer", "merchant")

	group, err := store.CreateGroup(ctx, ledger.GroupRef{})
	require.NoError(t, err)
	_, err = store.HoldDebit(ctx, "buyer", 250, group.ID)
	require.NoError(t, err)
	_, err = store.HoldCredit(ctx, "merchant", 250, group.ID)
	require.NoError(t, err)

	before, err := store.AvailableBalance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(-250), before)

	require.NoError(t, store.ReleaseGroup(ctx, group.ID, "payment abandoned"))

	released, err := store.Group(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.GroupReleased, released.Status)
	assert.Equal(t, "payment abandoned", released.Reason)

	// The offset negates the held amount and flips the direction.
	rows := ledger.ActiveRows(store, "buyer")
	require.Len(t, rows, 2)
	assert.Equal(t, int64(250), rows[1].Amount)
	assert.Equal(t, ledger.TypeCredit, rows[1].Type)
	assert.Equal(t, ledger.StatusReleased, rows[1].Status)

	after, err := store.AvailableBalance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(0), after)
}

func TestSettleRejectsUnbalancedGroup(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "a", "b", "c")

	group, err := store.CreateGroup(ctx, ledger.GroupRef{})
	require.NoError(t, err)
	_, err = store.HoldDebit(ctx, "a", 10, group.ID)
	require.NoError(t, err)
	_, err = store.HoldCredit(ctx, "b", 5, group.ID)
	require.NoError(t, err)
	_, err = store.HoldCredit(ctx, "c", 2, group.ID)
	require.NoError(t, err)

	err = store.SettleGroup(ctx, group.ID)
	require.ErrorIs(t, err, ledger.ErrGroupNotBalanced)

	// The failed settle leaves the group open and the holds intact.
	g, err := store.Group(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.GroupInProgress, g.Status)
	assert.Len(t, ledger.ActiveRows(store, "a"), 1)

	// Cancel is the way out: every hold gets its offset regardless of balance.
	require.NoError(t, store.CancelGroup(ctx, group.ID, "unbalanced"))
	for _, walletID := range []string{"a", "b", "c"} {
		balance, err := store.AvailableBalance(ctx, walletID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance, "wallet %s", walletID)
	}
}

func TestSettleRejectsEmptyGroup(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	group, err := store.CreateGroup(ctx, ledger.GroupRef{})
	require.NoError(t, err)

	err = store.SettleGroup(ctx, group.ID)
	require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestFinalizedGroupRejectsFurtherOperations(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "buyer", "merchant")

	group, err := store.CreateGroup(ctx, ledger.GroupRef{})
	require.NoError(t, err)
	_, err = store.HoldDebit(ctx, "buyer", 50, group.ID)
	require.NoError(t, err)
	_, err = store.HoldCredit(ctx, "merchant", 50, group.ID)
	require.NoError(t, err)
	require.NoError(t, store.SettleGroup(ctx, group.ID))

	_, err = store.HoldDebit(ctx, "buyer", 1, group.ID)
	assert.ErrorIs(t, err, ledger.ErrGroupFinalized)
	assert.ErrorIs(t, store.SettleGroup(ctx, group.ID), ledger.ErrGroupFinalized)
	assert.ErrorIs(t, store.ReleaseGroup(ctx, group.ID, ""), ledger.ErrGroupFinalized)
	assert.ErrorIs(t, store.CancelGroup(ctx, group.ID, ""), ledger.ErrGroupFinalized)
}

func TestHoldValidation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "buyer")

	group, err := store.CreateGroup(ctx, ledger.GroupRef{})
	require.NoError(t, err)

	_, err = store.HoldDebit(ctx, "buyer", 0, group.ID)
	assert.ErrorIs(t, err, ledger.ErrAmountNotPositive)
	_, err = store.HoldCredit(ctx, "buyer", -5, group.ID)
	assert.ErrorIs(t, err, ledger.ErrAmountNotPositive)
	_, err = store.HoldDebit(ctx, "ghost", 10, group.ID)
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
	_, err = store.HoldDebit(ctx, "buyer", 10, "no-such-group")
	assert.ErrorIs(t, err, ledger.ErrGroupNotFound)
}

func TestPerWalletSettle(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "buyer", "merchant")

	group, err := store.CreateGroup(ctx, ledger.GroupRef{})
	require.NoError(t, err)
	_, err = store.HoldDebit(ctx, "buyer", 75, group.ID)
	require.NoError(t, err)
	_, err = store.HoldCredit(ctx, "merchant", 75, group.ID)
	require.NoError(t, err)

	// Settling a single wallet finalizes only that wallet's holds.
	_, err = store.Settle(ctx, "buyer", group.ID)
	require.NoError(t, err)
	assert.Len(t, ledger.ActiveRows(store, "buyer"), 2)
	assert.Len(t, ledger.ActiveRows(store, "merchant"), 1)

	// A second settle on the same wallet has no outstanding hold left.
	_, err = store.Settle(ctx, "buyer", group.ID)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)

	_, err = store.Settle(ctx, "merchant", group.ID)
	require.NoError(t, err)
	assert.Len(t, ledger.ActiveRows(store, "merchant"), 2)
}

func TestGroupSettleFailureLeavesNoRows(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "a", "b")

	group, err := store.CreateGroup(ctx, ledger.GroupRef{})
	require.NoError(t, err)
	_, err = store.HoldDebit(ctx, "b", 100, group.ID)
	require.NoError(t, err)
	_, err = store.HoldCredit(ctx, "a", 100, group.ID)
	require.NoError(t, err)

	// Settle one wallet individually; its hold is no longer outstanding.
	_, err = store.Settle(ctx, "b", group.ID)
	require.NoError(t, err)

	// The group settle now fails on that wallet. The failure must not leave
	// rows behind for the wallets processed before it.
	err = store.SettleGroup(ctx, group.ID)
	require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	assert.Len(t, ledger.ActiveRows(store, "a"), 1)
	assert.Len(t, ledger.ActiveRows(store, "b"), 2)

	g, err := store.Group(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.GroupInProgress, g.Status)

	// Cancel hits the same wall and must be equally traceless.
	err = store.CancelGroup(ctx, group.ID, "stuck")
	require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	assert.Len(t, ledger.ActiveRows(store, "a"), 1)
	assert.Len(t, ledger.ActiveRows(store, "b"), 2)
}

func TestTransferSettlesAtomically(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "sender", "recipient")

	groupID, err := store.Transfer(ctx, "sender", "recipient", 300)
	require.NoError(t, err)

	group, err := store.Group(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, ledger.GroupSettled, group.Status)

	rows, err := store.GroupTransactions(ctx, groupID)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	senderBalance, err := store.AvailableBalance(ctx, "sender")
	require.NoError(t, err)
	assert.Equal(t, int64(-300), senderBalance)

	recipientBalance, err := store.AvailableBalance(ctx, "recipient")
	require.NoError(t, err)
	assert.Equal(t, int64(300), recipientBalance)

	_, err = store.Transfer(ctx, "sender", "ghost", 10)
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
	_, err = store.Transfer(ctx, "sender", "recipient", 0)
	assert.ErrorIs(t, err, ledger.ErrAmountNotPositive)
}

func TestAvailableBalanceReflectsDebitHoldsOnly(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "funding", "buyer", "merchant")

	// Give the buyer 500 settled.
	_, err := store.Transfer(ctx, "funding", "buyer", 500)
	require.NoError(t, err)

	group, err := store.CreateGroup(ctx, ledger.GroupRef{MerchantID: "merchant", BuyerID: "buyer"})
	require.NoError(t, err)
	_, err = store.HoldDebit(ctx, "buyer", 200, group.ID)
	require.NoError(t, err)
	_, err = store.HoldCredit(ctx, "merchant", 200, group.ID)
	require.NoError(t, err)

	available, err := store.AvailableBalance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(300), available)

	settled, err := store.SettledBalance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(500), settled)

	held, err := store.HeldBalance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(-200), held)

	// The merchant's incoming credit hold is not spendable yet.
	merchantAvailable, err := store.AvailableBalance(ctx, "merchant")
	require.NoError(t, err)
	assert.Equal(t, int64(0), merchantAvailable)

	// Settlement converts the hold; the reduction no longer double counts.
	require.NoError(t, store.SettleGroup(ctx, group.ID))
	available, err = store.AvailableBalance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(300), available)
}

func TestBalanceUnknownWallet(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.AvailableBalance(ctx, "ghost")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
	_, err = store.SettledBalance(ctx, "ghost")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
	_, err = store.HeldBalance(ctx, "ghost")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
}
