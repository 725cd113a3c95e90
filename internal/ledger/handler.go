package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nosota/mwallet/internal/notification"
)

// Handler exposes the ledger's group lifecycle and tier-maintenance endpoints.
type Handler struct {
	store    Store
	notifier notification.Notifier
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(store Store, notifier notification.Notifier) *Handler {
	return &Handler{store: store, notifier: notifier}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	case errors.Is(err, ErrGroupNotFound):
		return fiber.NewError(http.StatusNotFound, "transaction group not found")
	case errors.Is(err, ErrTransactionNotFound):
		return fiber.NewError(http.StatusNotFound, "no outstanding hold")
	case errors.Is(err, ErrGroupFinalized):
		return fiber.NewError(http.StatusConflict, "group already finalized")
	case errors.Is(err, ErrGroupNotBalanced):
		return fiber.NewError(http.StatusUnprocessableEntity, "group does not balance to zero")
	case errors.Is(err, ErrAmountNotPositive):
		return fiber.NewError(http.StatusBadRequest, "amount must be positive")
	case errors.Is(err, ErrVerificationFailed):
		return fiber.NewError(http.StatusInternalServerError, "tier migration verification failed")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

type createGroupRequest struct {
	MerchantID string `json:"merchant_id"`
	BuyerID    string `json:"buyer_id"`
}

// CreateGroup allocates a new IN_PROGRESS transaction group.
func (h *Handler) CreateGroup(c *fiber.Ctx) error {
	var req createGroupRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	group, err := h.store.CreateGroup(c.UserContext(), GroupRef{MerchantID: req.MerchantID, BuyerID: req.BuyerID})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"group_id":   group.ID,
		"status":     group.Status,
		"created_at": group.CreatedAt,
	})
}

// GetGroup returns group metadata and its member transactions.
func (h *Handler) GetGroup(c *fiber.Ctx) error {
	groupID := c.Params("groupId")
	group, err := h.store.Group(c.UserContext(), groupID)
	if err != nil {
		return httpError(err)
	}
	txs, err := h.store.GroupTransactions(c.UserContext(), groupID)
	if err != nil {
		return httpError(err)
	}

	members := make([]fiber.Map, 0, len(txs))
	for _, tx := range txs {
		members = append(members, fiber.Map{
			"transaction_id": tx.ID,
			"wallet_id":      tx.WalletID,
			"amount":         tx.Amount,
			"type":           tx.Type,
			"status":         tx.Status,
			"hold_at":        tx.HoldAt,
			"finalized_at":   tx.FinalizedAt,
		})
	}
	return c.JSON(fiber.Map{
		"group_id":     group.ID,
		"status":       group.Status,
		"reason":       group.Reason,
		"merchant_id":  group.MerchantID,
		"buyer_id":     group.BuyerID,
		"created_at":   group.CreatedAt,
		"updated_at":   group.UpdatedAt,
		"transactions": members,
	})
}

type holdRequest struct {
	WalletID    string `json:"wallet_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// HoldDebit places a debit hold on a wallet within the group.
func (h *Handler) HoldDebit(c *fiber.Ctx) error {
	return h.hold(c, h.store.HoldDebit)
}

// HoldCredit places a credit hold on a wallet within the group.
func (h *Handler) HoldCredit(c *fiber.Ctx) error {
	return h.hold(c, h.store.HoldCredit)
}

func (h *Handler) hold(c *fiber.Ctx, op func(ctx context.Context, walletID string, amount int64, groupID string) (string, error)) error {
	var req holdRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	txID, err := op(c.UserContext(), req.WalletID, req.Amount, c.Params("groupId"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"transaction_id": txID})
}

type finalizeGroupRequest struct {
	Reason string `json:"reason"`
}

// SettleGroup runs the zero-sum validation and settles the whole group.
func (h *Handler) SettleGroup(c *fiber.Ctx) error {
	groupID := c.Params("groupId")
	if err := h.store.SettleGroup(c.UserContext(), groupID); err != nil {
		return httpError(err)
	}

	if h.notifier != nil {
		if group, err := h.store.Group(c.UserContext(), groupID); err == nil {
			_ = h.notifier.Send(c.UserContext(), notification.Message{
				Kind:        notification.KindGroupSettled,
				Destination: group.MerchantID,
				Body:        fmt.Sprintf("transaction group %s settled", groupID),
			})
		}
	}
	return c.JSON(fiber.Map{"status": GroupSettled})
}

// ReleaseGroup reverses every hold in the group after a dispute.
func (h *Handler) ReleaseGroup(c *fiber.Ctx) error {
	return h.offset(c, h.store.ReleaseGroup, GroupReleased)
}

// CancelGroup aborts the group before settlement.
func (h *Handler) CancelGroup(c *fiber.Ctx) error {
	return h.offset(c, h.store.CancelGroup, GroupCancelled)
}

func (h *Handler) offset(c *fiber.Ctx, op func(ctx context.Context, groupID, reason string) error, status GroupStatus) error {
	var req finalizeGroupRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if err := op(c.UserContext(), c.Params("groupId"), req.Reason); err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"status": status})
}

// Snapshot triggers an active-to-warm migration pass for one wallet.
func (h *Handler) Snapshot(c *fiber.Ctx) error {
	moved, err := h.store.CaptureDailySnapshot(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"rows_migrated": moved})
}

type archiveRequest struct {
	OlderThan time.Time `json:"older_than"`
}

// Archive triggers a warm-to-cold consolidation pass for one wallet.
func (h *Handler) Archive(c *fiber.Ctx) error {
	var req archiveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.OlderThan.IsZero() {
		return fiber.NewError(http.StatusBadRequest, "older_than is required")
	}

	res, err := h.store.ArchiveOldSnapshots(c.UserContext(), c.Params("walletId"), req.OlderThan)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"skipped":       res.Skipped,
		"checkpoint_id": res.CheckpointID,
		"amount":        res.Amount,
		"rows_archived": res.RowsArchived,
		"groups_linked": res.GroupsLinked,
	})
}

// CheckpointGroups expands a checkpoint into the groups it consolidated.
func (h *Handler) CheckpointGroups(c *fiber.Ctx) error {
	groups, err := h.store.CheckpointGroups(c.UserContext(), c.Params("checkpointId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"checkpoint_id": c.Params("checkpointId"), "group_ids": groups})
}
