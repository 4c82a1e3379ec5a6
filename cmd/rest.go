package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	coreconfig "github.com/re178/mega-facebook-autoposter/core/config"
	"github.com/re178/mega-facebook-autoposter/pkg/utils"
	"github.com/re178/mega-facebook-autoposter/ui/rest"
	"github.com/re178/mega-facebook-autoposter/ui/rest/middleware"
	"github.com/re178/mega-facebook-autoposter/ui/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var restCmd = &cobra.Command{
	Use:     "rest",
	Aliases: []string{"serve"},
	Short:   "Run the scheduler, planner and HTTP control API",
	Long: `Starts every background loop (scheduler tick, topic planner, maintenance)
together with the REST API and the live activity websocket.`,
	Run: restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	cfg := coreconfig.Global
	if len(cfg.App.BasicAuth) == 0 {
		logrus.Fatalln("APP_BASIC_AUTH is required. Nothing should be public; please set APP_BASIC_AUTH=<user>:<secret>[,<user2>:<secret2>] and restart.")
	}
	account := make(map[string]string)
	for _, basicAuth := range cfg.App.BasicAuth {
		ba := strings.SplitN(basicAuth, ":", 2)
		if len(ba) != 2 {
			logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
		}
		account[ba[0]] = ba[1]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, true)
	if err != nil {
		logrus.Fatalf("[APP] Failed to start: %v", err)
	}
	defer a.Stop()

	rest.SetDeliveryPool(a.pool)
	if a.valkey != nil {
		websocket.SetValkeyClient(a.valkey, a.serverID)
	}
	unsubscribe := a.monitor.Subscribe(websocket.PublishActivity)
	defer unsubscribe()

	app := fiber.New(fiber.Config{
		Network:               "tcp",
		AppName:               "Facebook Autoposter",
		DisableStartupMessage: true,
		ServerHeader:          "Hidden",
	})

	app.Use(requestid.New())
	if len(cfg.App.CorsAllowedOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.App.CorsAllowedOrigins, ", "),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		}))
	}
	app.Use(middleware.Recovery())
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	apiGroup := app.Group(cfg.App.BasePath + "/api")
	apiGroup.Use(basicauth.New(basicauth.Config{
		Users: account,
		Next: func(c *fiber.Ctx) bool {
			// Allow CORS preflight without credentials.
			return c.Method() == fiber.MethodOptions
		},
	}))

	rest.InitRestApp(apiGroup)
	rest.InitRestSystem(apiGroup, a.control)
	rest.InitRestPages(apiGroup, a.control)
	rest.InitRestTopics(apiGroup, a.control, a.location)
	rest.InitRestPosts(apiGroup, a.control)

	checks := map[string]rest.Pinger{"database": rest.PingFunc(a.pingDatabase)}
	if a.valkey != nil {
		checks["valkey"] = a.valkey
	}
	rest.InitRestHealth(apiGroup, checks)
	websocket.RegisterRoutes(apiGroup, a.control)

	apiGroup.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(utils.ResponseData{
			Status:  fiber.StatusNotFound,
			Code:    "NOT_FOUND",
			Message: "Route " + c.Method() + " " + c.Path() + " does not exist",
		})
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.scheduler.Start(gctx)
		return nil
	})
	g.Go(func() error {
		a.planner.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return a.maintenance.Start(gctx)
	})
	g.Go(func() error {
		websocket.RunHub(gctx)
		return nil
	})
	g.Go(func() error {
		addr := ":" + cfg.App.Port
		logrus.Infof("[REST] Listening on %s%s/api", addr, cfg.App.BasePath)
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logrus.Errorf("[REST] Server stopped: %v", err)
	}
}

// withTimeout is used by one-shot commands that talk to storage.
func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, d)
}
