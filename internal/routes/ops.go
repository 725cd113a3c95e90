package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nosota/mwallet/internal/ledger"
)

// RegisterOpsRoutes wires tier-maintenance and audit endpoints. The caller
// is expected to guard the router group with OpsAuth.
func RegisterOpsRoutes(r fiber.Router, h *ledger.Handler) {
	r.Post("/wallets/:walletId/snapshot", h.Snapshot)
	r.Post("/wallets/:walletId/archive", h.Archive)
	r.Get("/checkpoints/:checkpointId/groups", h.CheckpointGroups)
}
