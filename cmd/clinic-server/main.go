package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicsched/clinic/internal/config"
	"github.com/clinicsched/clinic/internal/domain/identity"
	"github.com/clinicsched/clinic/internal/domain/patient"
	"github.com/clinicsched/clinic/internal/domain/scheduling"
	"github.com/clinicsched/clinic/internal/domain/visit"
	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/calendar"
	"github.com/clinicsched/clinic/internal/platform/db"
	"github.com/clinicsched/clinic/internal/platform/events"
	"github.com/clinicsched/clinic/internal/platform/middleware"
	"github.com/clinicsched/clinic/internal/platform/reporting"
)

const maxBodySize = "1M"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic scheduling and visit tracking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

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
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
}

// systemPrincipal acts for the operator running CLI commands.
var systemPrincipal = &auth.Principal{ID: uuid.Nil, Name: "system", Role: auth.RoleAdmin}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff logins",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an ADMIN or CLINICIAN login",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			role, _ := cmd.Flags().GetString("role")
			if name == "" || email == "" || password == "" {
				return fmt.Errorf("--name, --email and --password are required")
			}

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

			svc := identity.NewService(identity.NewRepoPG(pool), cfg.BcryptCost, newLogger(cfg.IsDev()))
			ident, err := svc.CreateUser(ctx, systemPrincipal, identity.NewUser{
				Name:     name,
				Email:    email,
				Password: password,
				Role:     role,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created %s %s (%s)\n", ident.Role, ident.Email, ident.ID)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("password", "", "Initial password")
	createCmd.Flags().String("role", string(auth.RoleClinician), "ADMIN or CLINICIAN")

	cmd.AddCommand(createCmd)
	return cmd
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.IsDev())
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid clinic timezone")
	}
	clock := calendar.NewClock(loc)

	key, randomKey, err := resolveSessionKey(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("session signing key error")
	}
	if randomKey {
		logger.Warn().Msg("SESSION_SIGNING_KEY not set; using random key (sessions will not survive restart)")
	}
	revoked := auth.NewRevocationList(time.Minute)
	defer revoked.Close()
	sessions := auth.NewSessionManager(key, cfg.SessionTTL).WithRevocation(revoked)

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Lifecycle events
	publisher := newPublisher(cfg, logger)
	defer publisher.Close()
	emitter := events.NewEmitter(publisher, logger)

	e := newEcho(cfg, logger, sessions)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, logger))

	apiV1 := e.Group("/api/v1")
	txRunner := db.NewTxRunner(pool)

	// Identity & access
	identitySvc := identity.NewService(identity.NewRepoPG(pool), cfg.BcryptCost, logger)
	identity.NewHandler(identitySvc, sessions).RegisterRoutes(apiV1)

	// Patient registry
	patientSvc := patient.NewService(patient.NewRepoPG(pool), identitySvc, txRunner, clock, logger)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	// Scheduling
	schedSvc := scheduling.NewService(
		scheduling.NewAppointmentRepoPG(pool),
		scheduling.NewPatientLookupPG(pool),
		txRunner, emitter, clock, logger,
	)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)

	// Visit records
	visitSvc := visit.NewService(visit.NewRepoPG(pool), emitter, logger)
	visit.NewHandler(visitSvc).RegisterRoutes(apiV1)

	// Reporting
	reportSvc := reporting.NewService(reporting.NewStorePG(pool), clock, logger)
	reporting.NewHandler(reportSvc).RegisterRoutes(apiV1)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
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

// newEcho builds the server with its global middleware chain and error
// handler. Routes are registered by the caller.
func newEcho(cfg *config.Config, logger zerolog.Logger, sessions *auth.SessionManager) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(auth.SessionMiddleware(sessions, auth.AuthSkipper))
	e.RouteNotFound(auth.NotFoundRoute, func(c echo.Context) error {
		return echo.ErrNotFound
	})
	return e
}

// resolveSessionKey returns the configured session key, or a random 32-byte
// key when none is set. The second return value is true for a random key.
func resolveSessionKey(cfg *config.Config) ([]byte, bool, error) {
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, false, err
	}
	if key != nil {
		return key, false, nil
	}
	key = make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random session signing key: %w", err)
	}
	return key, true, nil
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) events.Publisher {
	if !cfg.EventsEnabled() {
		logger.Info().Msg("KAFKA_BROKERS not set; lifecycle events disabled")
		return events.NopPublisher{}
	}
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing lifecycle events")
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}
