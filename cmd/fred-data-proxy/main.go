package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/fred-data-proxy/internal/api/http"
	"github.com/i474232898/fred-data-proxy/internal/config"
	"github.com/i474232898/fred-data-proxy/internal/fred"
	"github.com/i474232898/fred-data-proxy/internal/fred/upstream"
	"github.com/i474232898/fred-data-proxy/internal/logger"
	"github.com/i474232898/fred-data-proxy/internal/scheduler"
	"github.com/i474232898/fred-data-proxy/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		port   string
		dbPath string
		apiKey string
	)

	cmd := &cobra.Command{
		Use:           "fred-data-proxy",
		Short:         "Caching proxy in front of the FRED economic data API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// Flags win over the environment.
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("sqlite-db") {
				cfg.SQLitePath = dbPath
			}
			if cmd.Flags().Changed("fred-api-key") {
				cfg.FredAPIKey = apiKey
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "9001", "port to listen on")
	cmd.Flags().StringVar(&dbPath, "sqlite-db", "fred.db", "path of the SQLite cache database")
	cmd.Flags().StringVarP(&apiKey, "fred-api-key", "f", "", "FRED API key")
	return cmd
}

func run(cfg *config.AppConfig) error {
	log := logger.GetLogger()
	if err := log.Configure(cfg.LogLevel, cfg.LogFormat, cfg.LogOutput, cfg.LogMaxAge); err != nil {
		log.WithError(err).Error("failed to configure logger")
		return err
	}
	mainLog := log.WithComponent("main")

	// Shared HTTP client for outbound FRED calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	client := upstream.NewClient(httpClient, upstream.Config{
		BaseURL:           cfg.FredBaseURL,
		APIKey:            cfg.FredAPIKey,
		RequestsPerSecond: cfg.UpstreamRateLimit,
		Burst:             cfg.UpstreamRateBurst,
	})

	var cache fred.Store
	switch cfg.StoreBackend {
	case config.BackendMemory:
		cache = store.NewMemoryStore()
	default:
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			mainLog.WithError(err).Error("failed to open cache database")
			return err
		}
		defer db.Close()
		cache = db
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelInit()
	if err := cache.Initialize(initCtx); err != nil {
		mainLog.WithError(err).Error("failed to initialize cache")
		return err
	}

	service := fred.NewService(cache, client)

	// Scheduler that keeps configured series warm.
	sched := scheduler.New(cfg.WarmSeries, cfg.WarmInterval, service)
	if err := sched.Start(); err != nil {
		mainLog.WithError(err).Error("failed to start scheduler")
		return err
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "fred-data-proxy",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// Cold misses may page through upstream several times.
		WriteTimeout: 2 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		Output: log.Writer(),
	}))
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(compress.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "fred-data-proxy",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		mainLog.WithFields(logger.Fields{"port": cfg.Port, "store": cfg.StoreBackend}).Info("listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			mainLog.WithError(err).Error("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mainLog.WithError(err).Error("error during shutdown")
	}
	return nil
}
