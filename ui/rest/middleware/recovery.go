package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	pkgError "github.com/re178/mega-facebook-autoposter/pkg/error"
	"github.com/re178/mega-facebook-autoposter/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Recovery renders panics raised through utils.PanicIfNeeded as JSON.
// Errors implementing pkgError.GenericError keep their status and code.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			res := utils.ResponseData{
				Status:  fiber.StatusInternalServerError,
				Code:    "INTERNAL_SERVER_ERROR",
				Message: fmt.Sprintf("%v", recovered),
			}
			if err, ok := recovered.(error); ok {
				if ge, ok := pkgError.AsGeneric(err); ok {
					res.Status = ge.StatusCode()
					res.Code = ge.ErrCode()
					res.Message = ge.Error()
				}
			}

			if res.Status >= fiber.StatusInternalServerError {
				logrus.Errorf("[REST] Panic recovered in %s %s: %v", ctx.Method(), ctx.Path(), recovered)
			} else {
				logrus.Debugf("[REST] %s %s rejected: %s", ctx.Method(), ctx.Path(), res.Message)
			}
			_ = ctx.Status(res.Status).JSON(res)
		}()

		return ctx.Next()
	}
}
