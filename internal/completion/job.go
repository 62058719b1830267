package completion

import (
	"context"
	"time"

	"github.com/tidywork/finance-engine/internal"
)

// Job kinds. Non-billable visits (estimates, inspections) complete without
// financial artifacts.
const (
	KindBillableService  = "billable_service"
	KindNonBillableVisit = "non_billable_visit"
)

// Job lifecycle statuses.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Payment methods recorded at completion. Cash is the one that changes the
// whole downstream flow.
const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
	PaymentCheque   = "cheque"
)

// jobTransitions declares the legal status edges. Completion is reachable
// only from in_progress; cancellation only from scheduled.
var jobTransitions = map[string][]string{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// Job is a unit of scheduled work. The scheduling subsystem owns it; this
// engine only reads it and appends payment fields at completion.
type Job struct {
	ID               string     `json:"id" gorm:"primaryKey"`
	TenantID         string     `json:"tenant_id" gorm:"column:tenant_id;not null"`
	ClientName       string     `json:"client_name" gorm:"column:client_name"`
	AssignedWorkerID *string    `json:"assigned_worker_id,omitempty" gorm:"column:assigned_worker_id"`
	Kind             string     `json:"kind" gorm:"default:billable_service"`
	Status           string     `json:"status" gorm:"default:scheduled"`
	ScheduledAt      time.Time  `json:"scheduled_at" gorm:"column:scheduled_at"`
	DurationMinutes  int        `json:"duration_minutes" gorm:"column:duration_minutes"`
	TotalCents       int64      `json:"total_cents" gorm:"column:total_cents"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	AfterPhotoRef    *string    `json:"after_photo_ref,omitempty" gorm:"column:after_photo_ref"`
	CompletionNotes  string     `json:"completion_notes" gorm:"column:completion_notes"`

	PaymentMethod      *string    `json:"payment_method,omitempty" gorm:"column:payment_method"`
	PaymentAmountCents *int64     `json:"payment_amount_cents,omitempty" gorm:"column:payment_amount_cents"`
	PaymentDate        *time.Time `json:"payment_date,omitempty" gorm:"column:payment_date"`
	PaymentReference   *string    `json:"payment_reference,omitempty" gorm:"column:payment_reference"`
	PaymentReceivedBy  *string    `json:"payment_received_by,omitempty" gorm:"column:payment_received_by"`
	CashHandlingChoice *string    `json:"cash_handling_choice,omitempty" gorm:"column:cash_handling_choice"`
	PaymentNotes       *string    `json:"payment_notes,omitempty" gorm:"column:payment_notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}

// Transition moves the job along a declared edge.
func (j *Job) Transition(to string) error {
	for _, allowed := range jobTransitions[j.Status] {
		if allowed == to {
			j.Status = to
			j.UpdatedAt = time.Now()
			return nil
		}
	}
	return internal.NewValidationError("invalid job status transition", internal.ErrCodeInvalidStatus).
		WithDetails(map[string]string{"from": j.Status, "to": to})
}

// HoursWorked converts the job duration for the compensation calculator.
func (j *Job) HoursWorked() float64 {
	return float64(j.DurationMinutes) / 60.0
}

// CashPayment reports whether a cash payment was recorded.
func (j *Job) CashPayment() bool {
	return j.PaymentMethod != nil && *j.PaymentMethod == PaymentCash
}

// PaymentRecorded reports whether any payment data was attached.
func (j *Job) PaymentRecorded() bool {
	return j.PaymentMethod != nil && j.PaymentAmountCents != nil
}

// BillingBase is the subtotal an artifact is generated from: the job's
// configured total, or the recorded payment when no total is priced.
func (j *Job) BillingBase() int64 {
	if j.TotalCents > 0 {
		return j.TotalCents
	}
	if j.PaymentAmountCents != nil {
		return *j.PaymentAmountCents
	}
	return 0
}

// Repository defines the data access methods for jobs.
type Repository interface {
	GetByID(ctx context.Context, tenantID, id string) (*Job, error)
	Update(ctx context.Context, job *Job) error
	ListPendingInvoice(ctx context.Context, tenantID string, limit, offset int) ([]*Job, error)
}
