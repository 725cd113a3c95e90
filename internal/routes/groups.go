package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nosota/mwallet/internal/ledger"
)

// RegisterGroupRoutes wires the transaction group lifecycle endpoints.
func RegisterGroupRoutes(r fiber.Router, h *ledger.Handler) {
	r.Post("/groups", h.CreateGroup)
	r.Get("/groups/:groupId", h.GetGroup)
	r.Post("/groups/:groupId/hold-debit", h.HoldDebit)
	r.Post("/groups/:groupId/hold-credit", h.HoldCredit)
	r.Post("/groups/:groupId/settle", h.SettleGroup)
	r.Post("/groups/:groupId/release", h.ReleaseGroup)
	r.Post("/groups/:groupId/cancel", h.CancelGroup)
}
