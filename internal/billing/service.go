package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tidywork/finance-engine/internal"
	"github.com/tidywork/finance-engine/internal/core/events"
	"github.com/tidywork/finance-engine/internal/ledger"
	"github.com/tidywork/finance-engine/internal/tenant"
)

// PeriodGuard is the slice of the ledger service billing consults: the
// period lock before posting, and the posting itself.
type PeriodGuard interface {
	EnsureOpen(ctx context.Context, tenantID string, date time.Time, requirePeriod bool) error
	Post(ctx context.Context, tx ledger.Transaction) (string, error)
}

type TenantReader interface {
	GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Service produces exactly one billing artifact per job.
type Service struct {
	repo           Repository
	tenants        TenantReader
	periods        PeriodGuard
	bus            EventPublisher
	defaultTaxRate float64
	defaultDueDays int
	logger         *slog.Logger
}

func NewService(repo Repository, tenants TenantReader, periods PeriodGuard, bus EventPublisher, cfg internal.FinanceConfig, logger *slog.Logger) *Service {
	return &Service{
		repo:           repo,
		tenants:        tenants,
		periods:        periods,
		bus:            bus,
		defaultTaxRate: cfg.DefaultTaxRate,
		defaultDueDays: cfg.DefaultInvoiceDueDays,
		logger:         logger,
	}
}

// GenerateInput describes the job outcome to bill.
type GenerateInput struct {
	TenantID    string
	JobID       string
	Kind        string
	BaseCents   int64
	Date        time.Time
	Description string
}

// Generate creates the artifact for a job: computes tax from the tenant
// configuration, allocates the next number, persists with the one-per-job
// post-check, and posts the balanced ledger rows. Returns the existing
// artifact with created=false when the job already has one, which makes
// retried job completions a no-op.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*Artifact, bool, error) {
	if in.BaseCents < 0 {
		return nil, false, internal.NewValidationError("billing base amount cannot be negative", internal.ErrCodeInvalidAmount)
	}

	existing, err := s.repo.GetByJobID(ctx, in.TenantID, in.JobID)
	if err != nil && err != ErrArtifactNotFound {
		return nil, false, err
	}
	if existing != nil {
		s.logger.Info("billing artifact already exists for job, skipping",
			"artifact_id", existing.ID, "job_id", in.JobID, "kind", existing.Kind)
		return existing, false, nil
	}

	t, err := s.tenants.GetTenant(ctx, in.TenantID)
	if err != nil {
		return nil, false, err
	}

	if err := s.periods.EnsureOpen(ctx, in.TenantID, in.Date, t.RequireFinancialPeriods); err != nil {
		return nil, false, err
	}

	taxRate := s.defaultTaxRate
	if t.TaxRatePct != nil {
		taxRate = *t.TaxRatePct
	} else {
		s.logger.Warn("tenant has no tax rate configured, using system default",
			"tenant_id", in.TenantID, "rate", taxRate)
	}

	taxCents := taxAmount(in.BaseCents, taxRate)
	totalCents := in.BaseCents + taxCents

	// Sequence allocation commits on its own: a downstream failure leaves a
	// gap in the numbering, never a collision.
	seq, err := s.repo.NextSequence(ctx, in.TenantID, in.Kind)
	if err != nil {
		s.logger.Error("failed to allocate artifact sequence",
			"error", err, "tenant_id", in.TenantID, "kind", in.Kind)
		return nil, false, err
	}

	now := time.Now()
	artifact := &Artifact{
		ID:            uuid.NewString(),
		TenantID:      in.TenantID,
		JobID:         in.JobID,
		Kind:          in.Kind,
		Sequence:      seq,
		Number:        FormatNumber(in.Kind, seq),
		SubtotalCents: in.BaseCents,
		TaxRatePct:    taxRate,
		TaxCents:      taxCents,
		TotalCents:    totalCents,
		Description:   in.Description,
		IssuedAt:      in.Date,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	switch in.Kind {
	case KindInvoice:
		artifact.Status = StatusDraft
		dueDays := t.InvoiceDueDays
		if dueDays <= 0 {
			dueDays = s.defaultDueDays
		}
		due := in.Date.AddDate(0, 0, dueDays)
		artifact.DueAt = &due
	case KindReceipt:
		artifact.Status = StatusIssued
	default:
		return nil, false, internal.NewValidationError("unknown artifact kind: "+in.Kind, internal.ErrCodeValidationFailed)
	}

	if err := s.repo.CreateArtifact(ctx, artifact); err != nil {
		s.logger.Error("failed to create billing artifact",
			"error", err, "job_id", in.JobID, "kind", in.Kind)
		return nil, false, err
	}

	txID, err := s.postArtifact(ctx, artifact)
	if err != nil {
		// The artifact exists but its ledger rows do not; idempotent
		// re-entry through the completion processor will not recreate the
		// artifact, so surface the error for the caller to retry posting.
		return nil, false, err
	}
	artifact.LedgerTransactionID = &txID
	if err := s.repo.Update(ctx, artifact); err != nil {
		return nil, false, err
	}

	s.logger.Info("billing artifact generated",
		"artifact_id", artifact.ID,
		"job_id", in.JobID,
		"kind", in.Kind,
		"number", artifact.Number,
		"subtotal_cents", in.BaseCents,
		"tax_cents", taxCents,
		"total_cents", totalCents)

	eventType := events.EventTypeInvoiceGenerated
	if in.Kind == KindReceipt {
		eventType = events.EventTypeReceiptGenerated
	}
	s.bus.Publish(ctx, events.NewArtifactGeneratedEvent(
		eventType, artifact.ID, in.JobID, in.TenantID, artifact.Number, totalCents))

	return artifact, true, nil
}

// postArtifact writes the double-entry mirror: invoices debit receivables,
// receipts debit cash; both credit revenue and tax payable.
func (s *Service) postArtifact(ctx context.Context, a *Artifact) (string, error) {
	debitAccount := ledger.AccountAccountsReceivable
	sourceType := ledger.SourceInvoice
	if a.Kind == KindReceipt {
		debitAccount = ledger.AccountCash
		sourceType = ledger.SourceReceipt
	}

	lines := []ledger.Line{
		{AccountCode: debitAccount, Direction: ledger.Debit, AmountCents: a.TotalCents, Memo: a.Number},
		{AccountCode: ledger.AccountServiceRevenue, Direction: ledger.Credit, AmountCents: a.SubtotalCents, Memo: a.Number},
	}
	if a.TaxCents > 0 {
		lines = append(lines, ledger.Line{
			AccountCode: ledger.AccountTaxPayable, Direction: ledger.Credit, AmountCents: a.TaxCents, Memo: a.Number,
		})
	}

	return s.periods.Post(ctx, ledger.Transaction{
		TenantID:   a.TenantID,
		SourceType: sourceType,
		SourceID:   a.ID,
		Date:       a.IssuedAt,
		Lines:      lines,
	})
}

// MarkSent transitions a draft invoice or issued receipt to sent.
func (s *Service) MarkSent(ctx context.Context, tenantID, artifactID string) (*Artifact, error) {
	artifact, err := s.repo.GetByID(ctx, tenantID, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.Status != StatusDraft && artifact.Status != StatusIssued {
		return nil, internal.NewValidationError("artifact cannot be sent in current status", internal.ErrCodeInvalidStatus)
	}
	artifact.Status = StatusSent
	artifact.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

// MarkInvoicePaid settles an invoice: cash in, receivable cleared.
func (s *Service) MarkInvoicePaid(ctx context.Context, tenantID, artifactID string) (*Artifact, error) {
	artifact, err := s.repo.GetByID(ctx, tenantID, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.Kind != KindInvoice {
		return nil, internal.NewValidationError("only invoices can be marked paid", internal.ErrCodeInvalidStatus)
	}
	if artifact.Status != StatusSent && artifact.Status != StatusOverdue {
		return nil, internal.NewValidationError("invoice cannot be paid in current status", internal.ErrCodeInvalidStatus)
	}

	t, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.periods.EnsureOpen(ctx, tenantID, now, t.RequireFinancialPeriods); err != nil {
		return nil, err
	}

	if _, err := s.periods.Post(ctx, ledger.Transaction{
		TenantID:   tenantID,
		SourceType: ledger.SourceInvoice,
		SourceID:   artifact.ID,
		Date:       now,
		Lines: []ledger.Line{
			{AccountCode: ledger.AccountCash, Direction: ledger.Debit, AmountCents: artifact.TotalCents, Memo: artifact.Number + " payment"},
			{AccountCode: ledger.AccountAccountsReceivable, Direction: ledger.Credit, AmountCents: artifact.TotalCents, Memo: artifact.Number + " payment"},
		},
	}); err != nil {
		return nil, err
	}

	artifact.Status = StatusPaid
	artifact.PaidAt = &now
	artifact.UpdatedAt = now
	if err := s.repo.Update(ctx, artifact); err != nil {
		return nil, err
	}

	s.logger.Info("invoice marked paid", "artifact_id", artifactID, "number", artifact.Number)
	return artifact, nil
}

// MarkOverdue flags sent invoices whose due date has passed.
func (s *Service) MarkOverdue(ctx context.Context, tenantID string, asOf time.Time) (int, error) {
	sent, err := s.repo.ListByStatus(ctx, tenantID, StatusSent, 500, 0)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, artifact := range sent {
		if artifact.Kind != KindInvoice || artifact.DueAt == nil || !artifact.DueAt.Before(asOf) {
			continue
		}
		artifact.Status = StatusOverdue
		artifact.UpdatedAt = time.Now()
		if err := s.repo.Update(ctx, artifact); err != nil {
			return flagged, err
		}
		flagged++
	}

	if flagged > 0 {
		s.logger.Info("invoices marked overdue", "tenant_id", tenantID, "count", flagged)
	}
	return flagged, nil
}

// CancelInvoice voids an unpaid invoice and reverses its ledger rows via
// offsetting entries. Nothing is deleted.
func (s *Service) CancelInvoice(ctx context.Context, tenantID, artifactID string, reverse func(ctx context.Context, tenantID, transactionID, memo string) (string, error)) (*Artifact, error) {
	artifact, err := s.repo.GetByID(ctx, tenantID, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.Kind != KindInvoice || artifact.Status == StatusPaid || artifact.Status == StatusCancelled {
		return nil, internal.NewValidationError("invoice cannot be cancelled in current status", internal.ErrCodeInvalidStatus)
	}

	if artifact.LedgerTransactionID != nil {
		if _, err := reverse(ctx, tenantID, *artifact.LedgerTransactionID, artifact.Number+" cancelled"); err != nil {
			return nil, err
		}
	}

	artifact.Status = StatusCancelled
	artifact.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, artifact); err != nil {
		return nil, err
	}

	s.logger.Info("invoice cancelled", "artifact_id", artifactID, "number", artifact.Number)
	return artifact, nil
}

// GetByJobID exposes artifact lookup for the completion processor's
// duplicate check and for callers querying side effects after the fact.
func (s *Service) GetByJobID(ctx context.Context, tenantID, jobID string) (*Artifact, error) {
	return s.repo.GetByJobID(ctx, tenantID, jobID)
}

// ListDraftArtifactIDs implements ledger.DraftFinder.
func (s *Service) ListDraftArtifactIDs(ctx context.Context, tenantID string, from, to time.Time) ([]string, error) {
	return s.repo.ListDraftArtifactIDs(ctx, tenantID, from, to)
}

// taxAmount computes base x rate/100 in minor units, rounded half-up.
func taxAmount(baseCents int64, ratePct float64) int64 {
	return decimal.NewFromInt(baseCents).
		Mul(decimal.NewFromFloat(ratePct)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
