package rest

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/re178/mega-facebook-autoposter/autopost/application"
	pkgError "github.com/re178/mega-facebook-autoposter/pkg/error"
	"github.com/re178/mega-facebook-autoposter/pkg/utils"
)

type Topics struct {
	Control  *application.Control
	Location *time.Location
}

func InitRestTopics(app fiber.Router, control *application.Control, loc *time.Location) Topics {
	if loc == nil {
		loc = time.UTC
	}
	handler := Topics{Control: control, Location: loc}

	app.Get("/pages/:owner/topics", handler.ListTopics)
	app.Post("/topics", handler.CreateTopic)
	app.Post("/topics/preview", handler.Preview)
	app.Put("/topics/:id", handler.UpdateTopic)
	app.Delete("/topics/:id", handler.DeleteTopic)
	app.Post("/topics/:id/generate", handler.GenerateNow)

	return handler
}

func (h *Topics) parse(c *fiber.Ctx) TopicRequest {
	var req TopicRequest
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid JSON: " + err.Error()))
	}
	return req
}

func (h *Topics) ListTopics(c *fiber.Ctx) error {
	plans, err := h.Control.ListTopics(c.UserContext(), c.Params("owner"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Topics retrieved",
		Results: plans,
	})
}

func (h *Topics) CreateTopic(c *fiber.Ctx) error {
	plan, err := h.parse(c).toPlan(h.Location)
	utils.PanicIfNeeded(err)

	plan, err = h.Control.CreateTopic(c.UserContext(), plan)
	utils.PanicIfNeeded(err)

	results := fiber.Map{"topic": plan}
	if c.QueryBool("generate", false) {
		report, err := h.Control.GenerateNow(c.UserContext(), plan.ID, c.QueryBool("immediate", false))
		utils.PanicIfNeeded(err)
		results["generated"] = report
	}

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  fiber.StatusCreated,
		Code:    "SUCCESS",
		Message: "Topic created",
		Results: results,
	})
}

// Preview expands a topic without storing it.
func (h *Topics) Preview(c *fiber.Ctx) error {
	plan, err := h.parse(c).toPlan(h.Location)
	utils.PanicIfNeeded(err)

	slots, err := h.Control.PreviewTopic(plan, c.QueryBool("immediate", false))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("%d slot(s) planned", len(slots)),
		Results: slots,
	})
}

func (h *Topics) UpdateTopic(c *fiber.Ctx) error {
	plan, err := h.parse(c).toPlan(h.Location)
	utils.PanicIfNeeded(err)
	plan.ID = c.Params("id")

	plan, err = h.Control.UpdateTopic(c.UserContext(), plan)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Topic updated",
		Results: plan,
	})
}

func (h *Topics) DeleteTopic(c *fiber.Ctx) error {
	utils.PanicIfNeeded(h.Control.DeleteTopic(c.UserContext(), c.Params("id")))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Topic and its posts deleted",
	})
}

func (h *Topics) GenerateNow(c *fiber.Ctx) error {
	report, err := h.Control.GenerateNow(c.UserContext(), c.Params("id"), c.QueryBool("immediate", false))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("%d post(s) scheduled", report.Created),
		Results: report,
	})
}
