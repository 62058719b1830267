package compensation

import (
	"context"
	"time"

	"github.com/tidywork/finance-engine/internal"
)

// Compensation models. The model and rate are snapshotted onto every entry
// at computation time; later profile edits never change past entries.
const (
	ModelHourly     = "hourly"
	ModelFixed      = "fixed"
	ModelPercentage = "percentage"
)

// Entry statuses. pending_admin_approval and pending_handover come from the
// cash custody flow; the rest is the normal payroll path.
const (
	StatusPending              = "pending"
	StatusPendingAdminApproval = "pending_admin_approval"
	StatusPendingHandover      = "pending_handover"
	StatusApproved             = "approved"
	StatusRejected             = "rejected"
	StatusPaid                 = "paid"
)

// WorkerProfile is the per-worker compensation configuration. Read-only
// input here; mutated by administrative CRUD outside this engine.
type WorkerProfile struct {
	WorkerID  string    `json:"worker_id" gorm:"primaryKey;column:worker_id"`
	TenantID  string    `json:"tenant_id" gorm:"column:tenant_id;not null"`
	Model     string    `json:"model" gorm:"not null"`
	Rate      *float64  `json:"rate,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WorkerProfile) TableName() string {
	return "worker_profiles"
}

// Entry is one computed amount owed to a worker for one completed job.
// Exactly one exists per (job, worker); immutable after its payroll period
// closes except for approval and rejection transitions.
type Entry struct {
	ID                string     `json:"id" gorm:"primaryKey"`
	TenantID          string     `json:"tenant_id" gorm:"column:tenant_id;not null"`
	JobID             string     `json:"job_id" gorm:"column:job_id;not null;uniqueIndex:idx_entry_job_worker"`
	WorkerID          string     `json:"worker_id" gorm:"column:worker_id;not null;uniqueIndex:idx_entry_job_worker"`
	Model             string     `json:"model" gorm:"not null"`
	Rate              float64    `json:"rate"`
	HoursWorked       float64    `json:"hours_worked" gorm:"column:hours_worked"`
	WorkDate          time.Time  `json:"work_date" gorm:"column:work_date"`
	AmountCents       int64      `json:"amount_cents" gorm:"column:amount_cents"`
	Status            string     `json:"status" gorm:"default:pending"`
	DeductFromPayroll bool       `json:"deduct_from_payroll" gorm:"column:deduct_from_payroll;default:false"`
	DeductionCents    int64      `json:"deduction_cents" gorm:"column:deduction_cents;default:0"`
	PayrollPeriodID   *string    `json:"payroll_period_id,omitempty" gorm:"column:payroll_period_id"`
	PaidAt            *time.Time `json:"paid_at,omitempty" gorm:"column:paid_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Entry) TableName() string {
	return "compensation_entries"
}

// Payable reports whether an entry can join a payroll run.
func (e *Entry) Payable() bool {
	return e.Status == StatusPending || e.Status == StatusApproved
}

var (
	ErrEntryNotFound  = internal.NewNotFoundError("compensation entry not found", internal.ErrCodeWorkerNotFound)
	ErrInvalidStatus  = internal.NewValidationError("invalid compensation entry status for this operation", internal.ErrCodeInvalidStatus)
	ErrEntryImmutable = internal.NewConflictError("compensation entry belongs to a closed payroll period", internal.ErrCodeInvalidStatus)
)

// Repository defines the data access methods for compensation entries and
// worker profiles.
type Repository interface {
	GetProfile(ctx context.Context, tenantID, workerID string) (*WorkerProfile, error)
	CreateEntry(ctx context.Context, entry *Entry) error
	GetEntryByID(ctx context.Context, tenantID, id string) (*Entry, error)
	GetEntryByJobAndWorker(ctx context.Context, tenantID, jobID, workerID string) (*Entry, error)
	ListPayableEntries(ctx context.Context, tenantID string, from, to time.Time) ([]*Entry, error)
	UpdateEntryStatus(ctx context.Context, tenantID, id, status string) error
	SetDeduction(ctx context.Context, tenantID, id string, deduct bool, deductionCents int64) error
	AssignEntriesToPeriod(ctx context.Context, tenantID, periodID string, entryIDs []string) error
	MarkEntriesPaid(ctx context.Context, tenantID, periodID string, paidAt time.Time) error
}
