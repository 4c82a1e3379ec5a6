package rest

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/re178/mega-facebook-autoposter/pkg/utils"
)

// Pinger is anything whose reachability the health endpoint reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthRecord struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Health struct {
	Checks map[string]Pinger
}

func InitRestHealth(app fiber.Router, checks map[string]Pinger) Health {
	handler := Health{Checks: checks}

	group := app.Group("/health")
	group.Get("/status", handler.GetStatus)

	return handler
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]HealthRecord, 0, len(names))
	healthy := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		started := time.Now()
		err := h.Checks[name].Ping(ctx)
		cancel()

		rec := HealthRecord{Name: name, Healthy: err == nil, LatencyMS: time.Since(started).Milliseconds()}
		if err != nil {
			rec.Error = err.Error()
			healthy = false
		}
		records = append(records, rec)
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
			Status:  fiber.StatusServiceUnavailable,
			Code:    "UNHEALTHY",
			Message: "One or more dependencies are unreachable",
			Results: records,
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Health status retrieved",
		Results: records,
	})
}
