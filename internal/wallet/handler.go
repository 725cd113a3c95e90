package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Type        string `json:"type"`
	OwnerRef    string `json:"owner_ref"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// Create provisions a new wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	wallet, err := h.service.Create(c.UserContext(), CreateInput{
		Type:        Type(req.Type),
		OwnerRef:    req.OwnerRef,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"wallet_id":  wallet.ID,
		"type":       wallet.Type,
		"currency":   wallet.Currency,
		"created_at": wallet.CreatedAt,
	})
}

// Get returns wallet metadata.
func (h *Handler) Get(c *fiber.Ctx) error {
	wallet, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"wallet_id":   wallet.ID,
		"type":        wallet.Type,
		"owner_ref":   wallet.OwnerRef,
		"currency":    wallet.Currency,
		"description": wallet.Description,
		"created_at":  wallet.CreatedAt,
	})
}

// Balance returns the wallet's available, settled and held balances.
func (h *Handler) Balance(c *fiber.Ctx) error {
	balance, err := h.service.Balance(c.UserContext(), c.Params("walletId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"wallet_id": balance.WalletID,
		"available": balance.Available,
		"settled":   balance.Settled,
		"held":      balance.Held,
		"as_of":     balance.AsOf,
	})
}
