package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/re178/mega-facebook-autoposter/pkg/msgworker"
)

// deliveryPool is the pool the scheduler dispatches to. Nil until the server wires it.
var deliveryPool *msgworker.DeliveryWorkerPool

// SetDeliveryPool exposes pool through the stats endpoint.
func SetDeliveryPool(pool *msgworker.DeliveryWorkerPool) {
	deliveryPool = pool
}

// GetWorkerPoolStats returns real-time delivery pool statistics
func GetWorkerPoolStats(c *fiber.Ctx) error {
	if deliveryPool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Delivery worker pool not initialized",
		})
	}

	stats := deliveryPool.GetStats()
	return c.JSON(stats)
}
