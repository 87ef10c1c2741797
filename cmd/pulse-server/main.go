package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pulse-health/pulse-api/internal/config"
	"github.com/pulse-health/pulse-api/internal/domain/chat"
	"github.com/pulse-health/pulse-api/internal/domain/documents"
	"github.com/pulse-health/pulse-api/internal/domain/escalation"
	"github.com/pulse-health/pulse-api/internal/domain/identity"
	"github.com/pulse-health/pulse-api/internal/platform/assistant"
	"github.com/pulse-health/pulse-api/internal/platform/audit"
	"github.com/pulse-health/pulse-api/internal/platform/auth"
	"github.com/pulse-health/pulse-api/internal/platform/blobstore"
	"github.com/pulse-health/pulse-api/internal/platform/db"
	"github.com/pulse-health/pulse-api/internal/platform/events"
	"github.com/pulse-health/pulse-api/internal/platform/middleware"
	"github.com/pulse-health/pulse-api/internal/platform/notification"
	"github.com/pulse-health/pulse-api/internal/platform/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pulse-server",
		Short: "Pulse patient communication API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Pulse API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Write a forward migration that reverses the change instead.")
			return nil
		},
	})

	return cmd
}

// logEmailSender writes outbound email to the log instead of a mail provider.
// Used until a real provider is configured.
type logEmailSender struct {
	logger zerolog.Logger
}

func (s *logEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("email notification")
	return nil
}

// logSMSSender writes outbound SMS to the log instead of an SMS gateway.
type logSMSSender struct {
	logger zerolog.Logger
}

func (s *logSMSSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().
		Str("to", to).
		Int("body_bytes", len(body)).
		Msg("sms notification")
	return nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Event publisher: AMQP when a broker is configured, otherwise a no-op.
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.AMQPURL != "" {
		publisher, err = events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("connected to message broker")
	}
	defer publisher.Close()

	// Blob store: S3 when a bucket is configured, otherwise in-memory.
	var store blobstore.Store
	if cfg.S3Bucket != "" {
		store, err = blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure blob store")
		}
	} else {
		logger.Warn().Msg("no S3 bucket configured, document storage is in-memory")
		store = blobstore.NewInMemoryStore()
	}

	// Notifications
	notifyMgr := notification.NewNotificationManager(
		&logEmailSender{logger: logger},
		&logSMSSender{logger: logger},
		notification.NewTemplateEngine(),
	)
	notifier := notification.NewNotifier(notifyMgr, logger)

	// Telemetry
	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    "pulse-api",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Env,
	})
	defer tp.Shutdown(ctx)

	// Assistant upstream
	provider := assistant.NewOpenAIProvider(assistant.OpenAIConfig{
		BaseURL: cfg.AssistantBaseURL,
		APIKey:  cfg.AssistantAPIKey,
		Model:   cfg.AssistantModel,
		Timeout: cfg.AssistantTimeout,
	})

	// Audit trail
	recorder := audit.NewRecorder(pool, audit.DefaultPolicy(), logger)

	// Domain services
	identitySvc := identity.NewService(
		identity.NewUserRepoPG(pool),
		identity.NewPatientRepoPG(pool),
		identity.NewPhysicianRepoPG(pool),
		publisher,
		notifier,
		logger,
	)
	escalationSvc := escalation.NewService(
		escalation.NewRepoPG(pool),
		identitySvc,
		publisher,
		notifier,
		tp,
		logger,
	)
	chatSvc := chat.NewService(
		chat.NewRepoPG(pool),
		chat.NewMessageRepoPG(pool),
		pool,
		publisher,
		tp,
		logger,
	)
	// Resolving an escalation resolves its chat; wired late because the chat
	// service depends on the escalation service.
	escalationSvc.SetChatResolver(chatSvc)

	triage := chat.NewTriage(chatSvc, escalationSvc, identitySvc, provider, tp, logger)

	documentsSvc := documents.NewService(
		documents.NewRepoPG(pool),
		identitySvc,
		store,
		publisher,
		tp,
		logger,
	)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	// Generous ceiling: triage turns wait on the assistant upstream.
	e.Use(middleware.RequestTimeout(2 * cfg.AssistantTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(tp.TracingMiddleware())
	e.Use(tp.MetricsMiddleware())

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// Audit middleware
	e.Use(audit.Middleware(recorder))

	// API group
	api := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Routes
	identity.NewHandler(identitySvc).RegisterRoutes(api)
	escalation.NewHandler(escalationSvc, identitySvc).RegisterRoutes(api)
	chat.NewHandler(chatSvc, triage, identitySvc).RegisterRoutes(api)
	documents.NewHandler(documentsSvc, identitySvc).RegisterRoutes(api)
	audit.NewHandler(recorder).Register(api)
	// Notification administration is operator tooling, not a patient surface.
	notification.NewNotificationHandler(notifyMgr).RegisterRoutes(
		api.Group("", auth.RequireRole(auth.RoleAdmin)))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", tp.PrometheusHandler())

	// Periodic gauge refresh for open escalations, active chats, and pool usage.
	gaugeCtx, stopGauges := context.WithCancel(ctx)
	defer stopGauges()
	go refreshGauges(gaugeCtx, tp.HealthMetrics(), pool, escalationSvc, chatSvc)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func refreshGauges(
	ctx context.Context,
	rec *telemetry.HealthMetricsRecorder,
	pool *pgxpool.Pool,
	escalations *escalation.Service,
	chats *chat.Service,
) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.GetPoolStats(pool)
			rec.SetDBPoolActive(int64(stats.AcquiredConns))
			rec.SetDBPoolIdle(int64(stats.IdleConns))
			if n, err := escalations.CountOpen(ctx); err == nil {
				rec.SetOpenEscalations(n)
			}
			if n, err := chats.CountActive(ctx); err == nil {
				rec.SetActiveChats(n)
			}
		}
	}
}
