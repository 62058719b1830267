package custody

import (
	"context"
	"time"

	"github.com/tidywork/finance-engine/internal"
)

// Custody statuses. A record only exists when cash changed hands, so there
// is no persisted not_applicable state.
const (
	StatusOpen                 = "open"
	StatusKeptByWorker         = "kept_by_worker"
	StatusHandedToOffice       = "handed_to_office"
	StatusPendingAdminApproval = "pending_admin_approval"
	StatusApproved             = "approved"
	StatusRejected             = "rejected"
	StatusResolved             = "resolved"
)

// Cash handling choices reported at job completion.
const (
	ChoiceKept   = "kept"
	ChoiceHanded = "handed_over"
)

// transitions is the only authority on which custody edges exist. Every
// status change goes through Record.transition; nothing else writes Status.
var transitions = map[string][]string{
	StatusOpen:                 {StatusKeptByWorker, StatusHandedToOffice},
	StatusKeptByWorker:         {StatusPendingAdminApproval},
	StatusPendingAdminApproval: {StatusApproved, StatusRejected},
	StatusRejected:             {StatusResolved},
	StatusHandedToOffice:       {},
	StatusApproved:             {},
	StatusResolved:             {},
}

// Record tracks where collected cash physically is and whether payroll must
// absorb it. kept implies a payroll deduction once approved; handed_over has
// no payroll impact because the office already holds the funds.
type Record struct {
	ID                  string     `json:"id" gorm:"primaryKey"`
	TenantID            string     `json:"tenant_id" gorm:"column:tenant_id;not null"`
	JobID               string     `json:"job_id" gorm:"column:job_id;not null;uniqueIndex"`
	WorkerID            string     `json:"worker_id" gorm:"column:worker_id;not null"`
	CompensationEntryID *string    `json:"compensation_entry_id,omitempty" gorm:"column:compensation_entry_id"`
	AmountCents         int64      `json:"amount_cents" gorm:"column:amount_cents;not null"`
	Status              string     `json:"status" gorm:"default:open"`
	DisputeReason       *string    `json:"dispute_reason,omitempty" gorm:"column:dispute_reason"`
	ResolutionNotes     *string    `json:"resolution_notes,omitempty" gorm:"column:resolution_notes"`
	DecidedBy           *string    `json:"decided_by,omitempty" gorm:"column:decided_by"`
	DecidedAt           *time.Time `json:"decided_at,omitempty" gorm:"column:decided_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (Record) TableName() string {
	return "cash_custody_records"
}

// Transition moves the record along a declared edge or fails with
// PendingApprovalError.
func (r *Record) Transition(to string) error {
	for _, allowed := range transitions[r.Status] {
		if allowed == to {
			r.Status = to
			r.UpdatedAt = time.Now()
			return nil
		}
	}
	return internal.ErrPendingApproval.WithDetails(map[string]string{
		"from": r.Status,
		"to":   to,
	})
}

// KeptByWorker reports whether the cash stayed with the worker, meaning the
// amount must come out of their payroll once an administrator approves.
func (r *Record) KeptByWorker() bool {
	switch r.Status {
	case StatusKeptByWorker, StatusPendingAdminApproval, StatusApproved:
		return true
	}
	return false
}

var ErrRecordNotFound = internal.NewNotFoundError("cash custody record not found", internal.ErrCodeJobNotFound)

// Repository defines the data access methods for custody records.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	GetByID(ctx context.Context, tenantID, id string) (*Record, error)
	GetByJobID(ctx context.Context, tenantID, jobID string) (*Record, error)
	Update(ctx context.Context, record *Record) error
	ListByStatus(ctx context.Context, tenantID, status string, limit, offset int) ([]*Record, error)
}
