package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tidywork/finance-engine/internal"
	"github.com/tidywork/finance-engine/internal/auth"
)

// DraftFinder reports billing artifacts still in draft within a date range.
// Closing a period is blocked while any exist.
type DraftFinder interface {
	ListDraftArtifactIDs(ctx context.Context, tenantID string, from, to time.Time) ([]string, error)
}

// Service is the cross-cutting invariant layer every financial writer
// consults before posting or amending records.
type Service struct {
	repo   Repository
	drafts DraftFinder
	logger *slog.Logger
}

func NewService(repo Repository, drafts DraftFinder, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		drafts: drafts,
		logger: logger,
	}
}

// SetDraftFinder breaks the construction cycle with billing: billing posts
// through the ledger, the ledger checks billing's drafts on close.
func (s *Service) SetDraftFinder(drafts DraftFinder) {
	s.drafts = drafts
}

// EnsureOpen fails with PeriodClosedError when the date falls in a closed
// period. When no period covers the date, requirePeriod decides: tenants
// running a strict book need every posting inside an explicit open period,
// everyone else treats uncovered dates as open.
func (s *Service) EnsureOpen(ctx context.Context, tenantID string, date time.Time, requirePeriod bool) error {
	period, err := s.repo.FindPeriodCovering(ctx, tenantID, date)
	if err != nil {
		if err == ErrFinancialPeriodNotFound {
			if requirePeriod {
				s.logger.Warn("posting rejected: no financial period covers date",
					"tenant_id", tenantID, "date", date)
				return internal.ErrPeriodClosed.WithDetails(map[string]string{
					"date":   date.Format("2006-01-02"),
					"reason": "no financial period covers this date",
				})
			}
			return nil
		}
		return err
	}

	if period.Status == PeriodClosed {
		s.logger.Warn("posting rejected: financial period closed",
			"tenant_id", tenantID, "period_id", period.ID, "date", date)
		return internal.ErrPeriodClosed.WithDetails(map[string]string{
			"period_id": period.ID,
			"date":      date.Format("2006-01-02"),
		})
	}

	return nil
}

// CreatePeriod opens a new accounting window.
func (s *Service) CreatePeriod(ctx context.Context, tenantID string, start, end time.Time, actor *auth.Actor) (*FinancialPeriod, error) {
	if !actor.HasPermission(auth.PermissionClosePeriods) {
		return nil, internal.ErrUnauthorizedAccess
	}
	if end.Before(start) {
		return nil, internal.NewValidationError("period end date before start date", internal.ErrCodeInvalidDate)
	}

	period := &FinancialPeriod{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		StartDate: start,
		EndDate:   end,
		Status:    PeriodOpen,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.repo.CreatePeriod(ctx, period); err != nil {
		return nil, err
	}

	s.logger.Info("financial period created",
		"tenant_id", tenantID, "period_id", period.ID,
		"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"))
	return period, nil
}

// ClosePeriod locks the window. Fails with PendingArtifactsError listing the
// offending ids while draft artifacts are dated inside it.
func (s *Service) ClosePeriod(ctx context.Context, tenantID, periodID string, actor *auth.Actor) (*FinancialPeriod, error) {
	if !actor.HasPermission(auth.PermissionClosePeriods) {
		s.logger.Warn("period close denied: insufficient permissions",
			"period_id", periodID, "actor_id", actor.ID)
		return nil, internal.ErrUnauthorizedAccess
	}

	period, err := s.repo.GetPeriodByID(ctx, tenantID, periodID)
	if err != nil {
		return nil, err
	}
	if period.Status == PeriodClosed {
		return period, nil
	}

	draftIDs, err := s.drafts.ListDraftArtifactIDs(ctx, tenantID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, err
	}
	if len(draftIDs) > 0 {
		s.logger.Warn("period close blocked by draft artifacts",
			"period_id", periodID, "draft_count", len(draftIDs))
		return nil, internal.ErrPendingArtifacts.WithDetails(map[string]interface{}{
			"artifact_ids": draftIDs,
		})
	}

	now := time.Now()
	period.Status = PeriodClosed
	period.ClosedBy = &actor.ID
	period.ClosedAt = &now
	period.UpdatedAt = now
	if err := s.repo.UpdatePeriod(ctx, period); err != nil {
		return nil, err
	}

	s.logger.Info("financial period closed",
		"tenant_id", tenantID, "period_id", periodID, "actor_id", actor.ID)
	return period, nil
}

// ReopenPeriod unlocks a closed window. Audited: who, when, why.
func (s *Service) ReopenPeriod(ctx context.Context, tenantID, periodID, reason string, actor *auth.Actor) (*FinancialPeriod, error) {
	if !actor.HasPermission(auth.PermissionClosePeriods) {
		return nil, internal.ErrUnauthorizedAccess
	}

	period, err := s.repo.GetPeriodByID(ctx, tenantID, periodID)
	if err != nil {
		return nil, err
	}
	if period.Status != PeriodClosed {
		return nil, internal.NewValidationError("only closed periods can be reopened", internal.ErrCodeInvalidStatus)
	}

	now := time.Now()
	period.Status = PeriodOpen
	period.ReopenedBy = &actor.ID
	period.ReopenedAt = &now
	period.ReopenReason = &reason
	period.UpdatedAt = now
	if err := s.repo.UpdatePeriod(ctx, period); err != nil {
		return nil, err
	}

	s.logger.Info("financial period reopened",
		"tenant_id", tenantID, "period_id", periodID, "actor_id", actor.ID, "reason", reason)
	return period, nil
}

// Post appends the balanced double-entry rows for one transaction and
// returns the transaction id grouping them.
func (s *Service) Post(ctx context.Context, tx Transaction) (string, error) {
	if !tx.Balanced() {
		s.logger.Error("unbalanced ledger transaction rejected",
			"tenant_id", tx.TenantID, "source_type", tx.SourceType, "source_id", tx.SourceID)
		return "", internal.ErrUnbalancedEntry
	}

	transactionID := uuid.NewString()
	entries := make([]*Entry, 0, len(tx.Lines))
	for _, line := range tx.Lines {
		entries = append(entries, &Entry{
			ID:            uuid.NewString(),
			TenantID:      tx.TenantID,
			TransactionID: transactionID,
			SourceType:    tx.SourceType,
			SourceID:      tx.SourceID,
			EntryDate:     tx.Date,
			AccountCode:   line.AccountCode,
			Direction:     line.Direction,
			AmountCents:   line.AmountCents,
			Memo:          line.Memo,
			CreatedAt:     time.Now(),
		})
	}

	if err := s.repo.CreateEntries(ctx, entries); err != nil {
		s.logger.Error("failed to post ledger entries",
			"error", err, "tenant_id", tx.TenantID, "transaction_id", transactionID)
		return "", err
	}

	s.logger.Info("ledger transaction posted",
		"tenant_id", tx.TenantID,
		"transaction_id", transactionID,
		"source_type", tx.SourceType,
		"source_id", tx.SourceID,
		"lines", len(entries))
	return transactionID, nil
}

// Reverse appends offsetting entries for an existing transaction. The
// original rows are never touched.
func (s *Service) Reverse(ctx context.Context, tenantID, transactionID, memo string, actor *auth.Actor) (string, error) {
	if !actor.HasPermission(auth.PermissionClosePeriods) {
		return "", internal.ErrUnauthorizedAccess
	}

	originals, err := s.repo.ListEntriesByTransaction(ctx, tenantID, transactionID)
	if err != nil {
		return "", err
	}
	if len(originals) == 0 {
		return "", internal.NewNotFoundError("ledger transaction not found", internal.ErrCodePeriodNotFound)
	}

	reversalID := uuid.NewString()
	now := time.Now()
	entries := make([]*Entry, 0, len(originals))
	for _, orig := range originals {
		direction := Debit
		if orig.Direction == Debit {
			direction = Credit
		}
		origTx := orig.TransactionID
		entries = append(entries, &Entry{
			ID:            uuid.NewString(),
			TenantID:      tenantID,
			TransactionID: reversalID,
			SourceType:    SourceReversal,
			SourceID:      orig.SourceID,
			EntryDate:     now,
			AccountCode:   orig.AccountCode,
			Direction:     direction,
			AmountCents:   orig.AmountCents,
			Memo:          memo,
			ReversalOf:    &origTx,
			CreatedAt:     now,
		})
	}

	if err := s.repo.CreateEntries(ctx, entries); err != nil {
		s.logger.Error("failed to post reversing entries",
			"error", err, "tenant_id", tenantID, "transaction_id", transactionID)
		return "", err
	}

	s.logger.Info("ledger transaction reversed",
		"tenant_id", tenantID,
		"original_transaction_id", transactionID,
		"reversal_transaction_id", reversalID,
		"actor_id", actor.ID)
	return reversalID, nil
}

// ListEntries returns ledger rows in a date range for reporting.
func (s *Service) ListEntries(ctx context.Context, tenantID string, from, to time.Time, limit, offset int) ([]*Entry, error) {
	return s.repo.ListEntries(ctx, tenantID, from, to, limit, offset)
}

// ListPeriods returns the tenant's accounting windows.
func (s *Service) ListPeriods(ctx context.Context, tenantID string) ([]*FinancialPeriod, error) {
	return s.repo.ListPeriods(ctx, tenantID)
}
