package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/tidywork/finance-engine/internal"
)

// Artifact kinds. A job gets at most one artifact, ever, of either kind:
// an Invoice when payment is not cash, a Receipt when it is.
const (
	KindInvoice = "invoice"
	KindReceipt = "receipt"
)

// Invoice lifecycle. Receipts stop at issued/sent.
const (
	StatusDraft     = "draft"
	StatusIssued    = "issued"
	StatusSent      = "sent"
	StatusPaid      = "paid"
	StatusOverdue   = "overdue"
	StatusCancelled = "cancelled"
)

// Artifact is the client-facing financial document for a job.
type Artifact struct {
	ID                  string     `json:"id" gorm:"primaryKey"`
	TenantID            string     `json:"tenant_id" gorm:"column:tenant_id;not null;uniqueIndex:idx_artifact_number,priority:1"`
	JobID               string     `json:"job_id" gorm:"column:job_id;not null;uniqueIndex:idx_artifact_job"`
	Kind                string     `json:"kind" gorm:"not null;uniqueIndex:idx_artifact_number,priority:2"`
	Sequence            int64      `json:"sequence" gorm:"not null;uniqueIndex:idx_artifact_number,priority:3"`
	Number              string     `json:"number" gorm:"not null"`
	SubtotalCents       int64      `json:"subtotal_cents" gorm:"column:subtotal_cents;not null"`
	TaxRatePct          float64    `json:"tax_rate_pct" gorm:"column:tax_rate_pct"`
	TaxCents            int64      `json:"tax_cents" gorm:"column:tax_cents;not null"`
	TotalCents          int64      `json:"total_cents" gorm:"column:total_cents;not null"`
	Status              string     `json:"status" gorm:"default:draft"`
	Description         string     `json:"description"`
	IssuedAt            time.Time  `json:"issued_at" gorm:"column:issued_at"`
	DueAt               *time.Time `json:"due_at,omitempty" gorm:"column:due_at"`
	PaidAt              *time.Time `json:"paid_at,omitempty" gorm:"column:paid_at"`
	LedgerTransactionID *string    `json:"ledger_transaction_id,omitempty" gorm:"column:ledger_transaction_id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (Artifact) TableName() string {
	return "billing_artifacts"
}

// FormatNumber renders the sequential human-readable number for an
// artifact, e.g. INV-000042 or RCT-000007.
func FormatNumber(kind string, sequence int64) string {
	prefix := "INV"
	if kind == KindReceipt {
		prefix = "RCT"
	}
	return fmt.Sprintf("%s-%06d", prefix, sequence)
}

// Sequence is the per (tenant, kind) counter behind artifact numbering.
// Strictly increasing, never reused; gaps are accepted over collisions.
type Sequence struct {
	TenantID  string    `json:"tenant_id" gorm:"column:tenant_id;primaryKey"`
	Kind      string    `json:"kind" gorm:"primaryKey"`
	Value     int64     `json:"value" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Sequence) TableName() string {
	return "billing_sequences"
}

var ErrArtifactNotFound = internal.NewNotFoundError("billing artifact not found", internal.ErrCodeJobNotFound)

// Repository defines the data access methods for billing artifacts. The
// CreateArtifact implementation must run the create and the one-per-job
// post-check inside a single transaction.
type Repository interface {
	NextSequence(ctx context.Context, tenantID, kind string) (int64, error)
	CreateArtifact(ctx context.Context, artifact *Artifact) error
	GetByID(ctx context.Context, tenantID, id string) (*Artifact, error)
	GetByJobID(ctx context.Context, tenantID, jobID string) (*Artifact, error)
	Update(ctx context.Context, artifact *Artifact) error
	ListByStatus(ctx context.Context, tenantID, status string, limit, offset int) ([]*Artifact, error)
	ListDraftArtifactIDs(ctx context.Context, tenantID string, from, to time.Time) ([]string, error)
}
