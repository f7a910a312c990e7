package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AzielCF/az-crm/ui/rest"
	"github.com/AzielCF/az-crm/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the CRM HTTP API",
	Long:  `Starts the REST server: channel webhooks, the dashboard API and the realtime websocket hub.`,
	Run:   restServer,
}

func init() {
	restCmd.Flags().String("basic-auth", "", "Basic auth for API (format: user:pass,user2:pass2)")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	cfg := appConfig

	// Override basic auth if flag is provided
	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		cfg.App.BasicAuth = strings.Split(baFlag, ",")
	}

	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		BodyLimit:               cfg.App.BodyLimitMB * 1024 * 1024,
		Network:                 "tcp",
		AppName:                 "Az-CRM Routing Engine",
		DisableStartupMessage:   false, // Keep generic startup message
		ServerHeader:            "Hidden",
	}

	// Configure proxy settings if trusted proxies are specified
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedHost
	}

	app := fiber.New(fiberConfig)

	// Security: RequestID for audit trails
	app.Use(requestid.New())

	// Security: Strict CORS
	// In production, this should be restricted to the actual dashboard domain.
	origins := strings.Join(cfg.App.CorsAllowedOrigins, ", ")
	if !strings.Contains(origins, cfg.App.BaseUrl) {
		origins += ", " + cfg.App.BaseUrl
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Tenant-ID, X-Request-ID",
	}))
	app.Use(middleware.Recovery())

	// Security: Hardened Headers
	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            31536000, // 1 Year
		HSTSExcludeSubdomains: false,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; connect-src 'self' http://localhost:* ws://localhost:*;",
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

	// Subpath deployments hang everything under the base path.
	var root fiber.Router = app
	if cfg.App.BasePath != "" {
		root = app.Group(cfg.App.BasePath)
	}

	// System statics
	app.Static(cfg.App.BasePath+"/statics", cfg.Paths.Statics)

	// Channel webhooks stay public: the gateways cannot send credentials
	// and retry hard on anything that is not a 200.
	rest.InitRestWebhook(root, inboundUsecase)

	// Dashboard API group, optionally behind basic auth
	apiGroup := root.Group("/api")
	if len(cfg.App.BasicAuth) > 0 {
		account := make(map[string]string)
		for _, basicAuth := range cfg.App.BasicAuth {
			ba := strings.Split(basicAuth, ":")
			if len(ba) != 2 {
				logrus.Fatalln("Basic auth is not valid, please use the following format <user>:<secret>")
			}
			account[ba[0]] = ba[1]
		}
		apiGroup.Use(basicauth.New(basicauth.Config{
			Users: account,
			Next: func(c *fiber.Ctx) bool {
				// Allow CORS preflight without credentials.
				return c.Method() == fiber.MethodOptions
			},
		}))
	} else {
		logrus.Warnln("[REST] APP_BASIC_AUTH not set, /api endpoints are unprotected")
	}

	// GET /health stays public for probes while the /api/health group
	// inherits the basic auth registered above.
	rest.InitRestHealth(root, healthUsecase)

	rest.InitRestChat(apiGroup, chatUsecase)
	rest.InitRestCustomer(apiGroup, customerUsecase)
	rest.InitRestTicket(apiGroup, ticketUsecase)
	rest.InitRestIntegration(apiGroup, integrationUsecase)
	rest.InitRestKnowledge(apiGroup, knowledgeUsecase)
	rest.InitRestWorkerPool(apiGroup, workerPool)
	rest.InitRestMonitoring(apiGroup)
	rest.InitRestSettings(apiGroup, settingsService)

	// Websocket hub (dashboard realtime feed)
	serverCtx, cancelServer := context.WithCancel(context.Background())
	hub.RegisterRoutes(root)
	go hub.Run(serverCtx)

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		cancelServer()
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}

		// Stop all app subsystems (workers, stores, clients)
		StopApp()
	}()

	// 404 Handler for the API group to keep the error shape JSON
	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
}
