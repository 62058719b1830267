package ledger

import (
	"context"
	"time"

	"github.com/tidywork/finance-engine/internal"
)

// Financial period statuses. Independent of payroll periods: this is the
// accounting lock controlling whether postings are permitted on a date.
const (
	PeriodOpen   = "open"
	PeriodClosed = "closed"
)

// Account codes used by the engine's postings.
const (
	AccountCash               = "1000"
	AccountAccountsReceivable = "1100"
	AccountWagesPayable       = "2000"
	AccountTaxPayable         = "2100"
	AccountServiceRevenue     = "4000"
	AccountWagesExpense       = "5000"
)

// Entry directions.
const (
	Debit  = "debit"
	Credit = "credit"
)

// Transaction sources.
const (
	SourceInvoice       = "invoice"
	SourceReceipt       = "receipt"
	SourcePayrollPayout = "payroll_payout"
	SourceReversal      = "reversal"
)

// FinancialPeriod is a tenant-scoped accounting window. Closing is an
// explicit administrative action; reopening is allowed but audited.
type FinancialPeriod struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	TenantID     string     `json:"tenant_id" gorm:"column:tenant_id;not null"`
	StartDate    time.Time  `json:"start_date" gorm:"column:start_date;not null"`
	EndDate      time.Time  `json:"end_date" gorm:"column:end_date;not null"`
	Status       string     `json:"status" gorm:"default:open"`
	ClosedBy     *string    `json:"closed_by,omitempty" gorm:"column:closed_by"`
	ClosedAt     *time.Time `json:"closed_at,omitempty" gorm:"column:closed_at"`
	ReopenedBy   *string    `json:"reopened_by,omitempty" gorm:"column:reopened_by"`
	ReopenedAt   *time.Time `json:"reopened_at,omitempty" gorm:"column:reopened_at"`
	ReopenReason *string    `json:"reopen_reason,omitempty" gorm:"column:reopen_reason"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (FinancialPeriod) TableName() string {
	return "financial_periods"
}

// Covers reports whether a date falls inside the period, inclusive.
func (p *FinancialPeriod) Covers(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(p.StartDate.Truncate(24*time.Hour)) && !d.After(p.EndDate.Truncate(24*time.Hour))
}

// Entry is one immutable debit or credit row. Never updated or deleted;
// corrections are new reversing entries referencing the original
// transaction.
type Entry struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	TenantID      string    `json:"tenant_id" gorm:"column:tenant_id;not null"`
	TransactionID string    `json:"transaction_id" gorm:"column:transaction_id;not null;index"`
	SourceType    string    `json:"source_type" gorm:"column:source_type;not null"`
	SourceID      string    `json:"source_id" gorm:"column:source_id;not null"`
	EntryDate     time.Time `json:"entry_date" gorm:"column:entry_date;not null"`
	AccountCode   string    `json:"account_code" gorm:"column:account_code;not null"`
	Direction     string    `json:"direction" gorm:"not null"`
	AmountCents   int64     `json:"amount_cents" gorm:"column:amount_cents;not null"`
	Memo          string    `json:"memo"`
	ReversalOf    *string   `json:"reversal_of,omitempty" gorm:"column:reversal_of"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Entry) TableName() string {
	return "ledger_entries"
}

// Line is one leg of a transaction before it is persisted.
type Line struct {
	AccountCode string
	Direction   string
	AmountCents int64
	Memo        string
}

// Transaction is a balanced set of lines posted atomically.
type Transaction struct {
	TenantID   string
	SourceType string
	SourceID   string
	Date       time.Time
	Lines      []Line
}

// Balanced reports whether debits equal credits.
func (t *Transaction) Balanced() bool {
	var debits, credits int64
	for _, line := range t.Lines {
		switch line.Direction {
		case Debit:
			debits += line.AmountCents
		case Credit:
			credits += line.AmountCents
		default:
			return false
		}
	}
	return debits == credits && debits > 0
}

var ErrFinancialPeriodNotFound = internal.NewNotFoundError("financial period not found", internal.ErrCodePeriodNotFound)

// Repository defines the data access methods for financial periods and
// ledger entries.
type Repository interface {
	CreatePeriod(ctx context.Context, period *FinancialPeriod) error
	GetPeriodByID(ctx context.Context, tenantID, id string) (*FinancialPeriod, error)
	FindPeriodCovering(ctx context.Context, tenantID string, date time.Time) (*FinancialPeriod, error)
	UpdatePeriod(ctx context.Context, period *FinancialPeriod) error
	ListPeriods(ctx context.Context, tenantID string) ([]*FinancialPeriod, error)

	CreateEntries(ctx context.Context, entries []*Entry) error
	ListEntriesByTransaction(ctx context.Context, tenantID, transactionID string) ([]*Entry, error)
	ListEntries(ctx context.Context, tenantID string, from, to time.Time, limit, offset int) ([]*Entry, error)
}
