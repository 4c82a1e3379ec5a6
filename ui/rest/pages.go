package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/re178/mega-facebook-autoposter/autopost/application"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/page"
	pkgError "github.com/re178/mega-facebook-autoposter/pkg/error"
	"github.com/re178/mega-facebook-autoposter/pkg/utils"
	"github.com/re178/mega-facebook-autoposter/publish"
)

type Pages struct {
	Control *application.Control
}

func InitRestPages(app fiber.Router, control *application.Control) Pages {
	handler := Pages{Control: control}

	app.Get("/pages", handler.ListPages)
	app.Put("/pages/:owner", handler.UpsertPage)
	app.Delete("/pages/:owner", handler.DeletePage)
	app.Get("/pages/:owner/logs", handler.ActivityLog)
	app.Delete("/pages/:owner/logs", handler.ClearActivityLog)
	app.Post("/pages/:owner/replies", handler.Reply)

	return handler
}

func (h *Pages) ListPages(c *fiber.Ctx) error {
	pages, err := h.Control.ListPages(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Pages retrieved",
		Results: pages,
	})
}

func (h *Pages) UpsertPage(c *fiber.Ctx) error {
	var req PageRequest
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid JSON: " + err.Error()))
	}

	p, err := h.Control.UpsertPage(c.UserContext(), page.Page{
		ID:          c.Params("owner"),
		Name:        req.Name,
		ExternalID:  req.ExternalID,
		AccessToken: req.AccessToken,
	})
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Page saved",
		Results: p,
	})
}

func (h *Pages) DeletePage(c *fiber.Ctx) error {
	utils.PanicIfNeeded(h.Control.DeletePage(c.UserContext(), c.Params("owner")))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Page deleted",
	})
}

func (h *Pages) ActivityLog(c *fiber.Ctx) error {
	entries, err := h.Control.ActivityLog(c.UserContext(), c.Params("owner"), c.QueryInt("limit", 200))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Activity log retrieved",
		Results: entries,
	})
}

func (h *Pages) ClearActivityLog(c *fiber.Ctx) error {
	n, err := h.Control.ClearActivityLog(c.UserContext(), c.Params("owner"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Activity log cleared",
		Results: fiber.Map{"removed": n},
	})
}

func (h *Pages) Reply(c *fiber.Ctx) error {
	var req ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid JSON: " + err.Error()))
	}
	kind := publish.ThreadKind(req.Kind)
	if kind != publish.ThreadComment && kind != publish.ThreadMessage {
		utils.PanicIfNeeded(pkgError.ValidationError("kind must be comment or message"))
	}
	if req.ID == "" {
		utils.PanicIfNeeded(pkgError.ValidationError("id: cannot be blank"))
	}

	id, err := h.Control.Reply(c.UserContext(), c.Params("owner"), publish.ThreadRef{Kind: kind, ID: req.ID}, req.Text)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Reply sent",
		Results: fiber.Map{"id": id},
	})
}
