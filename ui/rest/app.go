package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/re178/mega-facebook-autoposter/core/config"
)

func InitRestApp(app fiber.Router) {
	app.Get("/app/version", GetVersion)
}

func GetVersion(c *fiber.Ctx) error {
	version, env := "dev", ""
	if config.Global != nil {
		version = config.Global.App.Version
		env = config.Global.App.Environment
	}
	return c.JSON(fiber.Map{
		"version":     version,
		"environment": env,
	})
}
