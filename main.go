package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"verifyengine/batch"
	"verifyengine/cache"
	"verifyengine/config"
	"verifyengine/dnsresolver"
	"verifyengine/enrich"
	"verifyengine/governor"
	"verifyengine/middleware"
	"verifyengine/notify"
	"verifyengine/policy"
	"verifyengine/routes"
	"verifyengine/smtpprobe"
	"verifyengine/telemetry"
	"verifyengine/verifier"
	"verifyengine/worker"
)

func main() {
	logger := log.New(os.Stdout, "ENGINE: ", log.Ldate|log.Ltime|log.Lshortfile)

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}

	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}

	tele := telemetry.New(telemetry.Config{
		DSN:         config.AppConfig.SentryDSN,
		Environment: config.AppConfig.Environment,
		Level:       config.AppConfig.LogLevel,
	})

	var store cache.Store
	if config.AppConfig.Redis.Address != "" {
		store = cache.NewRedisStore(cache.Config{
			Address:  config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		}, tele)
	} else {
		store = cache.NewMemStore()
	}

	resolver := dnsresolver.New(dnsresolver.Config{
		LookupTimeout:    5 * time.Second,
		SecondaryTimeout: 3 * time.Second,
	}, store, tele)

	pol := policy.New()

	gov := governor.New(governor.Config{
		Default: governor.Limits{PerMinute: 30, PerHour: 300},
		IPPool:  config.AppConfig.IPPool,
	}, store, tele)

	probe := smtpprobe.New(smtpprobe.Config{
		HeloDomain:     config.AppConfig.VerifyHeloDomain,
		MailFrom:       config.AppConfig.VerifyMailFrom,
		ConnectTimeout: 5 * time.Second,
		CommandTimeout: 10 * time.Second,
		GlobalTimeout:  15 * time.Second,
	})

	v := verifier.New(store, resolver, pol, gov, probe, tele)
	e := enrich.New(v, pol, tele)

	jobStore := batch.NewGormStore(config.DB)
	notifier := notify.New(notify.Config{
		Host:      config.AppConfig.SMTP.Host,
		Port:      config.AppConfig.SMTP.Port,
		Username:  config.AppConfig.SMTP.Username,
		Password:  config.AppConfig.SMTP.Password,
		FromName:  config.AppConfig.SMTP.FromName,
		FromEmail: config.AppConfig.SMTP.FromEmail,
	}, tele)

	executor := batch.New(batch.Config{
		SingleConcurrency: config.AppConfig.SingleWorkerConcurrency,
		BulkConcurrency:   config.AppConfig.BulkWorkerConcurrency,
	}, jobStore, v, notifier, tele)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	executor.Run(ctx)

	retentionWorker := worker.NewRetentionWorker(jobStore, 7*24*time.Hour, log.New(os.Stdout, "RETENTION: ", log.LstdFlags))
	go retentionWorker.Start(ctx)

	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, config.DB, v, e, executor, jobStore)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	logger.Printf("server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("failed to start server: %v", err)
	}
}
