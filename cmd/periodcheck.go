package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	compensationpg "github.com/tidywork/finance-engine/internal/compensation/postgres"
	"github.com/tidywork/finance-engine/internal/core/events"
	"github.com/tidywork/finance-engine/internal/ledger"
	ledgerpg "github.com/tidywork/finance-engine/internal/ledger/postgres"
	"github.com/tidywork/finance-engine/internal/payroll"
	payrollpg "github.com/tidywork/finance-engine/internal/payroll/postgres"
	tenantpg "github.com/tidywork/finance-engine/internal/tenant/postgres"
	"github.com/tidywork/finance-engine/pkg/logger"
)

// periodCheckCmd runs the payroll maintenance once and exits. Scheduled via
// cron rather than an in-process ticker so a crashed instance never silently
// stops the checks.
var periodCheckCmd = &cobra.Command{
	Use:   "periodcheck",
	Short: "Run the payroll period check for all tenants once",
	Long:  `Ensures every tenant has an active payroll period and flags periods past their end date. Intended to be invoked from cron.`,
	Run: func(cmd *cobra.Command, args []string) {
		runPeriodCheck()
	},
}

func runPeriodCheck() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	lg := logger.L()

	tenantRepo := tenantpg.NewTenantRepository(deps.Gorm)
	payrollRepo := payrollpg.NewPayrollRepository(deps.Gorm)
	compRepo := compensationpg.NewCompensationRepository(deps.Gorm)
	ledgerRepo := ledgerpg.NewLedgerRepository(deps.Gorm)

	bus := events.NewEventBus(lg)
	registerNotificationHandlers(bus, lg)

	ledgerSvc := ledger.NewService(ledgerRepo, nil, lg)
	payrollSvc := payroll.NewService(payrollRepo, compRepo, tenantRepo, ledgerSvc, lg)
	checker := payroll.NewChecker(payrollSvc, tenantRepo, bus)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := checker.CheckAllTenants(ctx); err != nil {
		lg.Error("period check failed", "error", err)
		os.Exit(1)
	}

	// Give the fire-and-forget handlers a moment to drain.
	time.Sleep(200 * time.Millisecond)
	lg.Info("period check complete")
}
