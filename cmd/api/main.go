package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/draftboardhq/draftboard-backend/config"
	"github.com/draftboardhq/draftboard-backend/pkg/api/handlers"
	custommw "github.com/draftboardhq/draftboard-backend/pkg/api/middleware"
	"github.com/draftboardhq/draftboard-backend/pkg/billing"
	"github.com/draftboardhq/draftboard-backend/pkg/cache"
	"github.com/draftboardhq/draftboard-backend/pkg/entitlements"
	"github.com/draftboardhq/draftboard-backend/pkg/jobs"
	"github.com/draftboardhq/draftboard-backend/pkg/logger"
	"github.com/draftboardhq/draftboard-backend/pkg/metrics"
	"github.com/draftboardhq/draftboard-backend/pkg/plans"
	"github.com/draftboardhq/draftboard-backend/pkg/store"
)

func main() {
	// Load .env in development; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	appLog := logger.New(cfg.LogLevel)
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	// Initialize database
	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}

	// Initialize Redis cache
	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New()
	log.Printf("✅ Prometheus metrics initialized")

	// Build the billing pipeline
	catalog := plans.NewCatalog(plans.CatalogPrices{
		ProMonthly: cfg.StripePriceProMonthly,
		ProYearly:  cfg.StripePriceProYearly,
	})
	materializer := plans.NewMaterializer(st, catalog, appLog)
	calculator := entitlements.NewCalculator(st, redisClient, prometheusMetrics, appLog, cfg.TrialPeriodDays)
	aggregator := entitlements.NewAggregator(st)
	gateway := billing.NewStripeGateway(cfg.StripeSecretKey, appLog)
	reconciler := billing.NewReconciler(st, catalog, materializer, calculator, prometheusMetrics, appLog)
	estimator := billing.NewEstimator(st, catalog, gateway, prometheusMetrics, appLog)
	billingService := billing.NewService(st, catalog, gateway, reconciler, prometheusMetrics, appLog, cfg.StripeWebhookSecret)
	sweep := billing.NewSweep(st, gateway, reconciler, prometheusMetrics, appLog, cfg.SweepWorkers)

	// Initialize cron manager for the reconciliation sweep
	cronManager := jobs.NewCronManager(sweep, cfg.SweepSchedule,
		time.Duration(cfg.SweepTimeoutMinutes)*time.Minute, appLog)
	if err := cronManager.SetupJobs(); err != nil {
		log.Fatalf("❌ Failed to setup cron jobs: %v", err)
	}
	cronManager.Start()
	log.Printf("✅ Cron jobs started (sweep schedule: %s)", cfg.SweepSchedule)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[%s] %s - Status: %d", c.Request().Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{
			"http://localhost:3000",
			cfg.FrontendURL,
		},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowCredentials: true,
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
		},
	}))
	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())

	// Health check endpoints (public)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"name":        "Draftboard API",
			"version":     "0.1.0",
			"status":      "running",
			"environment": cfg.APIEnvironment,
			"timestamp":   time.Now().Unix(),
		})
	})

	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		dbStatus := "up"
		if sqlDB, err := st.DB().DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "down"
		}

		redisStatus := "up"
		if _, err := redisClient.Get(ctx, "health_check"); err != nil && !cache.IsMiss(err) {
			redisStatus = "down"
		}

		status := http.StatusOK
		if dbStatus == "down" || redisStatus == "down" {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, map[string]any{
			"status":   "ok",
			"database": dbStatus,
			"redis":    redisStatus,
		})
	})

	// Prometheus metrics endpoint (public)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Initialize handlers
	billingHandler := handlers.NewBillingHandler(billingService, estimator, materializer, calculator, aggregator)

	v1 := e.Group("/api/v1")

	// Public billing routes
	v1.GET("/billing/pricing", billingHandler.GetPricing)
	v1.POST("/webhooks/stripe", billingHandler.HandleWebhook)

	// Protected routes (user id forwarded by the edge proxy)
	protected := v1.Group("")
	protected.Use(custommw.RequireUser())
	{
		billingGroup := protected.Group("/billing")
		{
			billingGroup.POST("/verify-checkout", billingHandler.VerifyCheckout)
			billingGroup.GET("/subscription", billingHandler.GetSubscription)
			billingGroup.GET("/state", billingHandler.GetSubscriptionState)
			billingGroup.GET("/limits", billingHandler.GetLimits)
			billingGroup.GET("/limits/check", billingHandler.CheckLimit)
			billingGroup.POST("/preview-proration", billingHandler.PreviewProration)
			billingGroup.POST("/trial", billingHandler.StartTrial)
		}
	}

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 Draftboard API starting on %s", address)

	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	cronManager.Stop()
	log.Println("✅ Cron jobs stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}
