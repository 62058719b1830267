package tenant

import (
	"context"
	"time"
)

// Invoice generation mode controls what happens when a completed job is
// payable by something other than cash.
const (
	InvoiceModeAutomatic = "automatic"
	InvoiceModeManual    = "manual"
)

// Pay frequency for payroll period sizing.
const (
	PayFrequencyWeekly      = "weekly"
	PayFrequencyBiweekly    = "biweekly"
	PayFrequencySemimonthly = "semimonthly"
	PayFrequencyMonthly     = "monthly"
)

// The source system computed next-period boundaries two different ways: a
// fixed Monday-start biweekly heuristic and a configurable pay frequency.
// They diverge for tenants that are not Monday-aligned or not biweekly, so
// each tenant picks one explicitly instead of the engine guessing.
const (
	BoundaryRuleMondayBiweekly = "monday_biweekly"
	BoundaryRulePayFrequency   = "pay_frequency"
)

// Cash handover compensation mode: whether a worker who hands collected cash
// to the office still gets a normal payroll compensation entry, or is
// considered settled out of band.
const (
	HandoverCompensationPayroll   = "payroll"
	HandoverCompensationOutOfBand = "out_of_band"
)

// Tenant is one company account. Every engine entity is scoped to exactly
// one of these; the fields here are the read-only configuration inputs the
// engine refreshes on every invocation.
type Tenant struct {
	ID                      string    `json:"id" gorm:"primaryKey"`
	Name                    string    `json:"name" gorm:"not null"`
	TaxRatePct              *float64  `json:"tax_rate_pct,omitempty" gorm:"column:tax_rate_pct"`
	InvoiceMode             string    `json:"invoice_mode" gorm:"column:invoice_mode;default:automatic"`
	InvoiceDueDays          int       `json:"invoice_due_days" gorm:"column:invoice_due_days;default:30"`
	DefaultHourlyRate       *float64  `json:"default_hourly_rate,omitempty" gorm:"column:default_hourly_rate"`
	PayFrequency            string    `json:"pay_frequency" gorm:"column:pay_frequency;default:biweekly"`
	PeriodBoundaryRule      string    `json:"period_boundary_rule" gorm:"column:period_boundary_rule;default:pay_frequency"`
	HandoverCompensation    string    `json:"handover_compensation" gorm:"column:handover_compensation;default:payroll"`
	JurisdictionCode        string    `json:"jurisdiction_code" gorm:"column:jurisdiction_code"`
	RequireFinancialPeriods bool      `json:"require_financial_periods" gorm:"column:require_financial_periods;default:false"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// Jurisdiction holds the regional overtime rules. A zero daily threshold is
// the sentinel for "no daily rule".
type Jurisdiction struct {
	Code                string    `json:"code" gorm:"primaryKey"`
	Name                string    `json:"name"`
	DailyOvertimeHours  float64   `json:"daily_overtime_hours" gorm:"column:daily_overtime_hours"`
	WeeklyOvertimeHours float64   `json:"weekly_overtime_hours" gorm:"column:weekly_overtime_hours"`
	OvertimeMultiplier  float64   `json:"overtime_multiplier" gorm:"column:overtime_multiplier;default:1.5"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (Jurisdiction) TableName() string {
	return "jurisdictions"
}

// Statutory contribution kinds.
const (
	ContributionPension      = "pension"
	ContributionUnemployment = "unemployment"
)

// ContributionRule is one statutory deduction for one calendar year:
// employee rate applied to gross, capped at an annual maximum withheld.
type ContributionRule struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	JurisdictionCode string    `json:"jurisdiction_code" gorm:"column:jurisdiction_code;not null"`
	Year             int       `json:"year" gorm:"not null"`
	Kind             string    `json:"kind" gorm:"not null"`
	EmployeeRatePct  float64   `json:"employee_rate_pct" gorm:"column:employee_rate_pct"`
	AnnualMaxCents   int64     `json:"annual_max_cents" gorm:"column:annual_max_cents"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (ContributionRule) TableName() string {
	return "contribution_rules"
}

// Repository supplies tenant configuration. Implementations must not cache:
// the engine reads fresh settings per invocation.
type Repository interface {
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
	GetJurisdiction(ctx context.Context, code string) (*Jurisdiction, error)
	GetContributionRules(ctx context.Context, jurisdictionCode string, year int) ([]*ContributionRule, error)
	ListTenantIDs(ctx context.Context) ([]string, error)
}
