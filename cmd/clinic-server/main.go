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

	"github.com/fivcare/clinic/internal/config"
	"github.com/fivcare/clinic/internal/domain/activity"
	"github.com/fivcare/clinic/internal/domain/audit"
	"github.com/fivcare/clinic/internal/domain/monitoring"
	"github.com/fivcare/clinic/internal/domain/sweep"
	"github.com/fivcare/clinic/internal/domain/treatment"
	"github.com/fivcare/clinic/internal/platform/appointments"
	"github.com/fivcare/clinic/internal/platform/auth"
	"github.com/fivcare/clinic/internal/platform/db"
	"github.com/fivcare/clinic/internal/platform/middleware"
	"github.com/fivcare/clinic/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Treatment lifecycle and monitoring scheduler",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Inactivity sweep operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one inactivity sweep pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			app := buildApp(pool, cfg, logger)
			res, err := app.sweeper.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Sweep finished: scanned=%d warned=%d closed=%d skipped=%d failed=%d\n",
				res.Scanned, res.Warned, res.Closed, res.Skipped, res.Failed)
			return nil
		},
	})

	return cmd
}

// app holds the wired services shared by the server and the one-shot sweep.
type app struct {
	treatmentSvc  *treatment.Service
	monitoringSvc *monitoring.Service
	auditRecorder *audit.Recorder
	sweeper       *sweep.Sweeper
	lease         sweep.LeaseRepository
}

func buildApp(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) *app {
	recorder := audit.NewRecorder(audit.NewRepoPG(pool))

	var emailSender notification.EmailSender
	if cfg.SMTPAddr != "" {
		emailSender = notification.NewSMTPEmailSender(cfg.SMTPAddr, cfg.SMTPFrom)
	}
	var alertSender notification.AlertSender
	if cfg.AlertWebhookURL != "" {
		alertSender = notification.NewWebhookAlertSender(cfg.AlertWebhookURL)
	}
	notifier := notification.NewDispatcher(emailSender, alertSender, cfg.NotifyTimeout(), logger)

	treatmentSvc := treatment.NewService(treatment.NewRepoPG(pool), recorder, logger)
	aggregator := activity.NewAggregator(activity.NewRepoPG(pool), logger)

	var booking appointments.Service = &appointments.Local{}
	if cfg.AppointmentsBaseURL != "" {
		booking = appointments.NewHTTPClient(cfg.AppointmentsBaseURL)
	}
	monitoringSvc := monitoring.NewService(monitoring.NewRepoPG(pool), treatmentSvc, booking, notifier, logger)

	return &app{
		treatmentSvc:  treatmentSvc,
		monitoringSvc: monitoringSvc,
		auditRecorder: recorder,
		sweeper:       sweep.NewSweeper(treatmentSvc, aggregator, notifier, logger),
		lease:         sweep.NewLeaseRepoPG(pool),
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	app := buildApp(pool, cfg, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": "0.1.0"})
	})

	apiV1 := e.Group("/api/v1")
	treatment.NewHandler(app.treatmentSvc).RegisterRoutes(apiV1)
	monitoring.NewHandler(app.monitoringSvc).RegisterRoutes(apiV1)
	audit.NewHandler(app.auditRecorder).RegisterRoutes(apiV1)
	sweep.NewHandler(app.sweeper).RegisterRoutes(apiV1)

	// Daily sweep
	schedCtx, stopSched := context.WithCancel(context.Background())
	defer stopSched()
	if cfg.SweepEnabled {
		scheduler := sweep.NewScheduler(app.sweeper, app.lease, cfg.SweepHour, logger)
		go scheduler.Start(schedCtx)
	} else {
		logger.Info().Msg("scheduled sweep disabled")
	}

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
	stopSched()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
