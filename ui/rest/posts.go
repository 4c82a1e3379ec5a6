package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/re178/mega-facebook-autoposter/autopost/application"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	pkgError "github.com/re178/mega-facebook-autoposter/pkg/error"
	"github.com/re178/mega-facebook-autoposter/pkg/utils"
)

type Posts struct {
	Control *application.Control
}

func InitRestPosts(app fiber.Router, control *application.Control) Posts {
	handler := Posts{Control: control}

	app.Get("/pages/:owner/posts", handler.ListPosts)
	app.Post("/posts", handler.CreatePost)
	app.Get("/posts/:id", handler.GetPost)
	app.Patch("/posts/:id", handler.EditPost)
	app.Delete("/posts/:id", handler.DeletePost)
	app.Post("/posts/:id/retry", handler.RetryPost)
	app.Post("/posts/:id/publish", handler.PublishNow)
	app.Put("/posts/:id/tag", handler.MarkContent)
	app.Get("/posts/:id/history", handler.History)

	return handler
}

func (h *Posts) ListPosts(c *fiber.Ctx) error {
	items, err := h.Control.ListPosts(c.UserContext(), c.Params("owner"), c.QueryInt("limit", 100))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Posts retrieved",
		Results: items,
	})
}

func (h *Posts) CreatePost(c *fiber.Ctx) error {
	var req PostRequest
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid JSON: " + err.Error()))
	}

	item, err := h.Control.CreatePost(c.UserContext(), post.ScheduledItem{
		OwnerID:     req.OwnerID,
		Text:        req.Text,
		MediaRef:    req.MediaRef,
		ScheduledAt: req.ScheduledAt,
		ContentTag:  req.ContentTag,
	})
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  fiber.StatusCreated,
		Code:    "SUCCESS",
		Message: "Post scheduled",
		Results: item,
	})
}

func (h *Posts) GetPost(c *fiber.Ctx) error {
	item, err := h.Control.GetPost(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Post retrieved",
		Results: item,
	})
}

func (h *Posts) EditPost(c *fiber.Ctx) error {
	var req application.PostEdit
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid JSON: " + err.Error()))
	}

	item, err := h.Control.EditPost(c.UserContext(), c.Params("id"), req)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Post updated",
		Results: item,
	})
}

func (h *Posts) DeletePost(c *fiber.Ctx) error {
	utils.PanicIfNeeded(h.Control.DeletePost(c.UserContext(), c.Params("id")))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Post deleted",
	})
}

func (h *Posts) RetryPost(c *fiber.Ctx) error {
	item, err := h.Control.RetryPost(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Retry queued",
		Results: item,
	})
}

func (h *Posts) PublishNow(c *fiber.Ctx) error {
	item, err := h.Control.PublishNow(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	message := "Post published"
	if item.Status != post.StatusPosted {
		message = "Publish attempted, see last_error"
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
		Results: item,
	})
}

func (h *Posts) MarkContent(c *fiber.Ctx) error {
	var req MarkContentRequest
	if err := c.BodyParser(&req); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid JSON: " + err.Error()))
	}

	item, err := h.Control.MarkContent(c.UserContext(), c.Params("id"), req.Tag)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Content tag updated",
		Results: item,
	})
}

func (h *Posts) History(c *fiber.Ctx) error {
	entries, err := h.Control.PostHistory(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Post history retrieved",
		Results: entries,
	})
}
