package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tidywork/finance-engine/internal"
	"github.com/tidywork/finance-engine/internal/billing"
	billingpg "github.com/tidywork/finance-engine/internal/billing/postgres"
	"github.com/tidywork/finance-engine/internal/compensation"
	compensationpg "github.com/tidywork/finance-engine/internal/compensation/postgres"
	"github.com/tidywork/finance-engine/internal/completion"
	completionpg "github.com/tidywork/finance-engine/internal/completion/postgres"
	"github.com/tidywork/finance-engine/internal/core/events"
	"github.com/tidywork/finance-engine/internal/custody"
	custodypg "github.com/tidywork/finance-engine/internal/custody/postgres"
	"github.com/tidywork/finance-engine/internal/ledger"
	ledgerpg "github.com/tidywork/finance-engine/internal/ledger/postgres"
	"github.com/tidywork/finance-engine/internal/payroll"
	payrollpg "github.com/tidywork/finance-engine/internal/payroll/postgres"
	"github.com/tidywork/finance-engine/internal/tenant"
	tenantpg "github.com/tidywork/finance-engine/internal/tenant/postgres"
	"github.com/tidywork/finance-engine/internal/transport/rest"
	"github.com/tidywork/finance-engine/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Gorm   *gorm.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	wireServices(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

// wireServices assembles the repositories, services, and handlers and mounts
// every route.
func wireServices(deps *Dependencies) {
	lg := deps.Logger
	cfg := deps.Config

	tenantRepo := tenantpg.NewTenantRepository(deps.Gorm)
	compRepo := compensationpg.NewCompensationRepository(deps.Gorm)
	custodyRepo := custodypg.NewCustodyRepository(deps.Gorm)
	billingRepo := billingpg.NewBillingRepository(deps.Gorm)
	ledgerRepo := ledgerpg.NewLedgerRepository(deps.Gorm)
	jobRepo := completionpg.NewJobRepository(deps.Gorm)
	payrollRepo := payrollpg.NewPayrollRepository(deps.Gorm)

	bus := events.NewEventBus(lg)
	registerNotificationHandlers(bus, lg)

	ledgerSvc := ledger.NewService(ledgerRepo, nil, lg)
	compSvc := compensation.NewService(compRepo, tenant.Defaults{Repo: tenantRepo}, cfg.Finance.DefaultHourlyRate, lg)
	custodySvc := custody.NewService(custodyRepo, compSvc, bus, lg)
	billingSvc := billing.NewService(billingRepo, tenantRepo, ledgerSvc, bus, cfg.Finance, lg)
	// Billing posts through the ledger; the ledger checks billing drafts on
	// close. The finder is attached after both exist.
	ledgerSvc.SetDraftFinder(billingSvc)
	payrollSvc := payroll.NewService(payrollRepo, compRepo, tenantRepo, ledgerSvc, lg)
	checker := payroll.NewChecker(payrollSvc, tenantRepo, bus)
	completionSvc := completion.NewService(jobRepo, custodySvc, billingSvc, compSvc, tenantRepo, bus, lg)

	handlers := rest.Handlers{
		Completion: completion.NewHandler(completionSvc),
		Custody:    custody.NewHandler(custodySvc),
		Billing:    billing.NewHandler(billingSvc, ledgerSvc),
		Payroll:    payroll.NewHandler(payrollSvc, checker),
		Ledger:     ledger.NewHandler(ledgerSvc),
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, handlers, []byte(cfg.Security.JWTSigningKey), lg)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	return &Dependencies{
		Config: config,
		Logger: logger.L(),
		DB:     db,
		Gorm:   gormDB,
		Router: chi.NewRouter(),
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm layers the ORM over the already-open pgx connection pool.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
	})
}
