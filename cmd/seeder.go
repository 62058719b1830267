package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/tidywork/finance-engine/internal/auth"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSeed()
	},
}

func runSeed() {
	deps, err := initializeDependencies()
	if err != nil {
		log.Fatalf("failed to initialize dependencies: %v", err)
	}
	defer deps.DB.Close()
	db := deps.Gorm

	if clearData {
		fmt.Println("Clearing existing data...")
		for _, table := range []string{
			"ledger_entries", "financial_periods", "payroll_lines", "payroll_periods",
			"billing_artifacts", "billing_sequences", "cash_custody_records",
			"compensation_entries", "jobs", "worker_profiles",
			"contribution_rules", "jurisdictions", "tenants", "users",
		} {
			if err := db.Exec("DELETE FROM " + table).Error; err != nil {
				log.Fatalf("failed to clear %s: %v", table, err)
			}
		}
	}

	tenantID := "11111111-1111-1111-1111-111111111111"
	var exists int
	if err := db.Raw("SELECT 1 FROM tenants WHERE id = ?", tenantID).Row().Scan(&exists); err == nil {
		fmt.Println("demo tenant already exists; skipping seed")
		return
	}

	if err := db.Exec(`INSERT INTO jurisdictions (code, name, daily_overtime_hours, weekly_overtime_hours, overtime_multiplier, created_at, updated_at)
		VALUES ('ON', 'Ontario', 8, 44, 1.5, now(), now())`).Error; err != nil {
		log.Fatalf("failed to insert jurisdiction: %v", err)
	}

	year := time.Now().Year()
	contributions := []struct {
		Kind string
		Rate float64
		Max  int64
	}{
		{"pension", 5.95, 402600},
		{"unemployment", 1.64, 104900},
	}
	for _, c := range contributions {
		if err := db.Exec(`INSERT INTO contribution_rules (id, jurisdiction_code, year, kind, employee_rate_pct, annual_max_cents, created_at, updated_at)
			VALUES (?, 'ON', ?, ?, ?, ?, now(), now())`,
			uuid.NewString(), year, c.Kind, c.Rate, c.Max).Error; err != nil {
			log.Fatalf("failed to insert contribution rule %s: %v", c.Kind, err)
		}
	}

	if err := db.Exec(`INSERT INTO tenants (id, name, tax_rate_pct, invoice_mode, invoice_due_days, default_hourly_rate, pay_frequency, period_boundary_rule, handover_compensation, jurisdiction_code, require_financial_periods, created_at, updated_at)
		VALUES (?, 'Sparkle Cleaning Co', 13.0, 'automatic', 30, 17.50, 'biweekly', 'pay_frequency', 'payroll', 'ON', false, now(), now())`,
		tenantID).Error; err != nil {
		log.Fatalf("failed to insert tenant: %v", err)
	}
	fmt.Println("Seeded demo tenant:", tenantID)

	workers := []struct {
		ID    string
		Model string
		Rate  float64
	}{
		{"22222222-2222-2222-2222-222222222221", "hourly", 19.00},
		{"22222222-2222-2222-2222-222222222222", "fixed", 85.00},
		{"22222222-2222-2222-2222-222222222223", "percentage", 40.0},
	}
	for _, w := range workers {
		if err := db.Exec(`INSERT INTO worker_profiles (worker_id, tenant_id, model, rate, created_at, updated_at)
			VALUES (?, ?, ?, ?, now(), now())`,
			w.ID, tenantID, w.Model, w.Rate).Error; err != nil {
			log.Fatalf("failed to insert worker profile: %v", err)
		}
	}
	fmt.Println("Seeded worker profiles:", len(workers))

	for i, w := range workers {
		jobID := uuid.NewString()
		if err := db.Exec(`INSERT INTO jobs (id, tenant_id, client_name, assigned_worker_id, kind, status, scheduled_at, duration_minutes, total_cents, created_at, updated_at)
			VALUES (?, ?, ?, ?, 'billable_service', 'scheduled', ?, 120, 12000, now(), now())`,
			jobID, tenantID, fmt.Sprintf("Demo Client %d", i+1), w.ID,
			time.Now().AddDate(0, 0, i)).Error; err != nil {
			log.Fatalf("failed to insert job: %v", err)
		}
	}
	fmt.Println("Seeded demo jobs:", len(workers))

	// Operator account for the external auth service sharing this database.
	password := "password"
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), deps.Config.Security.BCryptCost)
	adminID := "33333333-3333-3333-3333-333333333333"
	if err := db.Exec(`INSERT INTO users (id, tenant_id, email, name, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, 'admin@sparkle.test', 'Demo Admin', ?, true, now(), now())`,
		adminID, tenantID, string(hash)).Error; err != nil {
		log.Fatalf("failed to insert admin user: %v", err)
	}
	fmt.Println("Seeded admin user: admin@sparkle.test /", password)

	if deps.Config.Security.JWTSigningKey != "" {
		token, err := auth.IssueToken(&auth.Actor{
			ID:          adminID,
			TenantID:    tenantID,
			Permissions: []string{auth.PermissionAdmin},
		}, []byte(deps.Config.Security.JWTSigningKey), 24*time.Hour)
		if err != nil {
			log.Fatalf("failed to issue dev token: %v", err)
		}
		fmt.Println("Dev admin token (24h):", token)
	}
}
