package ledger_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nosota/mwallet/internal/ledger"
	"github.com/nosota/mwallet/internal/notification"
)

type recordingNotifier struct {
	sent []notification.Message
}

func (r *recordingNotifier) Send(_ context.Context, message notification.Message) error {
	r.sent = append(r.sent, message)
	return nil
}

func TestSettleGroupEndpointNotifiesMerchant(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "buyer", "merchant")
	notifier := &recordingNotifier{}

	h := ledger.NewHandler(store, notifier)
	app := fiber.New()
	app.Post("/groups/:groupId/settle", h.SettleGroup)

	group, err := store.CreateGroup(ctx, ledger.GroupRef{MerchantID: "merchant", BuyerID: "buyer"})
	require.NoError(t, err)
	_, err = store.HoldDebit(ctx, "buyer", 100, group.ID)
	require.NoError(t, err)
	_, err = store.HoldCredit(ctx, "merchant", 100, group.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, "/groups/"+group.ID+"/settle", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notification.KindGroupSettled, notifier.sent[0].Kind)
	assert.Equal(t, "merchant", notifier.sent[0].Destination)

	// A failed settle must not notify.
	empty, err := store.CreateGroup(ctx, ledger.GroupRef{MerchantID: "merchant"})
	require.NoError(t, err)
	req = httptest.NewRequest(fiber.MethodPost, "/groups/"+empty.ID+"/settle", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
	assert.Len(t, notifier.sent, 1)
}
