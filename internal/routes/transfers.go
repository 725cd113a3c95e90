package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nosota/mwallet/internal/payments"
)

// RegisterTransferRoutes wires the transfer endpoint.
func RegisterTransferRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/transfers", h.Transfer)
}
