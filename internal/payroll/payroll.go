package payroll

import (
	"context"
	"time"

	"github.com/tidywork/finance-engine/internal"
)

// Payroll period statuses. Approval is one-way: there is no transition out
// of approved except paid, and none out of paid. Mistakes are corrected by
// reversing ledger entries, never by rolling the period back.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusApproved   = "approved"
	StatusPaid       = "paid"
)

var periodTransitions = map[string][]string{
	StatusPending:    {StatusInProgress, StatusApproved},
	StatusInProgress: {StatusApproved},
	StatusApproved:   {StatusPaid},
	StatusPaid:       {},
}

// Period is one payroll window for one tenant. Aggregate totals are
// recomputed on every aggregation run until the period is approved.
type Period struct {
	ID                  string     `json:"id" gorm:"primaryKey"`
	TenantID            string     `json:"tenant_id" gorm:"column:tenant_id;not null"`
	StartDate           time.Time  `json:"start_date" gorm:"column:start_date;not null"`
	EndDate             time.Time  `json:"end_date" gorm:"column:end_date;not null"`
	Status              string     `json:"status" gorm:"default:pending"`
	GrossTotalCents     int64      `json:"gross_total_cents" gorm:"column:gross_total_cents;default:0"`
	DeductionTotalCents int64      `json:"deduction_total_cents" gorm:"column:deduction_total_cents;default:0"`
	NetTotalCents       int64      `json:"net_total_cents" gorm:"column:net_total_cents;default:0"`
	EndNotified         bool       `json:"end_notified" gorm:"column:end_notified;default:false"`
	LedgerTransactionID *string    `json:"ledger_transaction_id,omitempty" gorm:"column:ledger_transaction_id"`
	ApprovedBy          *string    `json:"approved_by,omitempty" gorm:"column:approved_by"`
	ApprovedAt          *time.Time `json:"approved_at,omitempty" gorm:"column:approved_at"`
	PaidBy              *string    `json:"paid_by,omitempty" gorm:"column:paid_by"`
	PaidAt              *time.Time `json:"paid_at,omitempty" gorm:"column:paid_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (Period) TableName() string {
	return "payroll_periods"
}

// Transition moves the period along a declared edge.
func (p *Period) Transition(to string) error {
	for _, allowed := range periodTransitions[p.Status] {
		if allowed == to {
			p.Status = to
			p.UpdatedAt = time.Now()
			return nil
		}
	}
	return internal.NewValidationError("invalid payroll period status transition", internal.ErrCodeInvalidStatus).
		WithDetails(map[string]string{"from": p.Status, "to": to})
}

// Active reports whether the period still accepts aggregation runs.
func (p *Period) Active() bool {
	return p.Status == StatusPending || p.Status == StatusInProgress
}

// Line is one worker's computed pay for one period. Rebuilt from scratch on
// every aggregation until approval freezes the period.
type Line struct {
	ID                   string    `json:"id" gorm:"primaryKey"`
	TenantID             string    `json:"tenant_id" gorm:"column:tenant_id;not null"`
	PeriodID             string    `json:"period_id" gorm:"column:period_id;not null;index"`
	WorkerID             string    `json:"worker_id" gorm:"column:worker_id;not null"`
	RegularHours         float64   `json:"regular_hours" gorm:"column:regular_hours"`
	OvertimeHours        float64   `json:"overtime_hours" gorm:"column:overtime_hours"`
	GrossCents           int64     `json:"gross_cents" gorm:"column:gross_cents"`
	OvertimePremiumCents int64     `json:"overtime_premium_cents" gorm:"column:overtime_premium_cents"`
	PensionCents         int64     `json:"pension_cents" gorm:"column:pension_cents"`
	UnemploymentCents    int64     `json:"unemployment_cents" gorm:"column:unemployment_cents"`
	CashDeductionCents   int64     `json:"cash_deduction_cents" gorm:"column:cash_deduction_cents"`
	NetCents             int64     `json:"net_cents" gorm:"column:net_cents"`
	EntryCount           int       `json:"entry_count" gorm:"column:entry_count"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (Line) TableName() string {
	return "payroll_lines"
}

// DeductionTotal is everything withheld from the worker's gross.
func (l *Line) DeductionTotal() int64 {
	return l.PensionCents + l.UnemploymentCents + l.CashDeductionCents
}

var ErrPayrollPeriodNotFound = internal.NewNotFoundError("payroll period not found", internal.ErrCodePeriodNotFound)

// Repository defines the data access methods for payroll periods and lines.
type Repository interface {
	CreatePeriod(ctx context.Context, period *Period) error
	GetPeriodByID(ctx context.Context, tenantID, id string) (*Period, error)
	GetActivePeriod(ctx context.Context, tenantID string) (*Period, error)
	GetLastPaidPeriod(ctx context.Context, tenantID string) (*Period, error)
	UpdatePeriod(ctx context.Context, period *Period) error
	ListPeriods(ctx context.Context, tenantID string, limit, offset int) ([]*Period, error)

	ReplaceLines(ctx context.Context, periodID string, lines []*Line) error
	ListLines(ctx context.Context, tenantID, periodID string) ([]*Line, error)
	SumDeductionsYear(ctx context.Context, tenantID, workerID string, year int) (pensionCents, unemploymentCents int64, err error)

	// WithTenantLock serializes payroll maintenance per tenant across
	// processes. Postgres implements it with an advisory lock.
	WithTenantLock(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
}
