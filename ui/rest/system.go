package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/re178/mega-facebook-autoposter/autopost/application"
	"github.com/re178/mega-facebook-autoposter/core/config"
	pkgError "github.com/re178/mega-facebook-autoposter/pkg/error"
	"github.com/re178/mega-facebook-autoposter/pkg/utils"
)

type System struct {
	Control *application.Control
}

func InitRestSystem(app fiber.Router, control *application.Control) System {
	handler := System{Control: control}

	app.Get("/settings", handler.GetSettings)
	app.Get("/settings/autogen", handler.GetAutoGeneration)
	app.Put("/settings/autogen", handler.SetAutoGeneration)
	app.Put("/settings/scheduler", handler.SetSchedulerPaused)
	app.Put("/settings/media", handler.SetMediaProbability)
	app.Get("/providers", handler.ListProviders)
	app.Put("/providers/:name", handler.SetProviderEnabled)
	app.Get("/worker-pool/stats", GetWorkerPoolStats)

	return handler
}

func (h *System) GetSettings(c *fiber.Ctx) error {
	on, err := h.Control.AutoGeneration(c.UserContext())
	utils.PanicIfNeeded(err)

	settings := config.GetAllSettings()
	settings["auto_generation_enabled"] = on
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Settings retrieved",
		Results: settings,
	})
}

func (h *System) GetAutoGeneration(c *fiber.Ctx) error {
	on, err := h.Control.AutoGeneration(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Auto generation state",
		Results: fiber.Map{"enabled": on},
	})
}

func (h *System) SetAutoGeneration(c *fiber.Ctx) error {
	var req ToggleRequest
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid JSON: " + err.Error()))
	}
	utils.PanicIfNeeded(h.Control.SetAutoGeneration(c.UserContext(), req.Enabled))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Auto generation updated",
		Results: fiber.Map{"enabled": req.Enabled},
	})
}

func (h *System) SetSchedulerPaused(c *fiber.Ctx) error {
	var req PauseRequest
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid JSON: " + err.Error()))
	}
	utils.PanicIfNeeded(h.Control.SetSchedulerPaused(c.UserContext(), req.Paused))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduler state updated",
		Results: fiber.Map{"paused": req.Paused},
	})
}

func (h *System) SetMediaProbability(c *fiber.Ctx) error {
	var req MediaProbabilityRequest
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid JSON: " + err.Error()))
	}
	utils.PanicIfNeeded(h.Control.SetMediaProbability(c.UserContext(), req.Probability))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Media probability updated",
		Results: fiber.Map{"probability": req.Probability},
	})
}

func (h *System) ListProviders(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Provider state retrieved",
		Results: h.Control.Providers(),
	})
}

func (h *System) SetProviderEnabled(c *fiber.Ctx) error {
	var req ToggleRequest
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid JSON: " + err.Error()))
	}
	utils.PanicIfNeeded(h.Control.SetProviderEnabled(c.UserContext(), c.Params("name"), req.Enabled))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Provider updated",
		Results: h.Control.Providers(),
	})
}
