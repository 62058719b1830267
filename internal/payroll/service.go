package payroll

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tidywork/finance-engine/internal"
	"github.com/tidywork/finance-engine/internal/auth"
	"github.com/tidywork/finance-engine/internal/compensation"
	"github.com/tidywork/finance-engine/internal/ledger"
	"github.com/tidywork/finance-engine/internal/tenant"
)

// EntrySource is the slice of the compensation repository payroll consumes.
type EntrySource interface {
	ListPayableEntries(ctx context.Context, tenantID string, from, to time.Time) ([]*compensation.Entry, error)
	AssignEntriesToPeriod(ctx context.Context, tenantID, periodID string, entryIDs []string) error
	MarkEntriesPaid(ctx context.Context, tenantID, periodID string, paidAt time.Time) error
}

// TenantConfig supplies the per-tenant settings and jurisdiction rules the
// aggregator reads fresh on every run.
type TenantConfig interface {
	GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error)
	GetJurisdiction(ctx context.Context, code string) (*tenant.Jurisdiction, error)
	GetContributionRules(ctx context.Context, jurisdictionCode string, year int) ([]*tenant.ContributionRule, error)
}

// LedgerPoster is the slice of the ledger service payroll posts through.
type LedgerPoster interface {
	EnsureOpen(ctx context.Context, tenantID string, date time.Time, requirePeriod bool) error
	Post(ctx context.Context, tx ledger.Transaction) (string, error)
}

// Service computes payroll periods: boundary maintenance, aggregation with
// jurisdictional overtime and statutory deductions, one-way approval, and
// the payout ledger posting.
type Service struct {
	repo    Repository
	entries EntrySource
	tenants TenantConfig
	ledger  LedgerPoster
	logger  *slog.Logger
}

func NewService(repo Repository, entries EntrySource, tenants TenantConfig, ledgerSvc LedgerPoster, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		entries: entries,
		tenants: tenants,
		ledger:  ledgerSvc,
		logger:  logger,
	}
}

// CurrentPeriod returns the tenant's active payroll period, creating the
// next one when none exists. The new period starts the day after the last
// paid period ended (or today for a fresh tenant) and its boundaries follow
// the tenant's configured rule. Runs under the tenant lock so two concurrent
// callers never both miss the active-period read and double-create.
func (s *Service) CurrentPeriod(ctx context.Context, tenantID string) (*Period, error) {
	var period *Period
	err := s.repo.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		p, err := s.currentPeriod(ctx, tenantID)
		if err != nil {
			return err
		}
		period = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return period, nil
}

func (s *Service) currentPeriod(ctx context.Context, tenantID string) (*Period, error) {
	active, err := s.repo.GetActivePeriod(ctx, tenantID)
	if err != nil && err != ErrPayrollPeriodNotFound {
		return nil, err
	}
	if active != nil {
		return active, nil
	}

	t, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	candidate := dateOnly(time.Now())
	last, err := s.repo.GetLastPaidPeriod(ctx, tenantID)
	if err != nil && err != ErrPayrollPeriodNotFound {
		return nil, err
	}
	if last != nil {
		candidate = dateOnly(last.EndDate).AddDate(0, 0, 1)
	}

	start, end := s.periodBounds(t, candidate)

	period := &Period{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		StartDate: start,
		EndDate:   end,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.repo.CreatePeriod(ctx, period); err != nil {
		return nil, err
	}

	s.logger.Info("payroll period created",
		"tenant_id", tenantID,
		"period_id", period.ID,
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
		"boundary_rule", t.PeriodBoundaryRule)
	return period, nil
}

// periodBounds computes the window for a period beginning at or around the
// candidate start date. The two rules disagree for tenants that are not
// Monday-aligned biweekly shops, so the divergence is logged whenever the
// Monday rule shifts the start.
func (s *Service) periodBounds(t *tenant.Tenant, candidate time.Time) (time.Time, time.Time) {
	if t.PeriodBoundaryRule == tenant.BoundaryRuleMondayBiweekly {
		start := weekStart(candidate)
		if !start.Equal(candidate) {
			s.logger.Warn("monday_biweekly boundary shifted the period start",
				"tenant_id", t.ID,
				"candidate", candidate.Format("2006-01-02"),
				"start", start.Format("2006-01-02"))
		}
		return start, start.AddDate(0, 0, 13)
	}

	switch t.PayFrequency {
	case tenant.PayFrequencyWeekly:
		return candidate, candidate.AddDate(0, 0, 6)
	case tenant.PayFrequencySemimonthly:
		if candidate.Day() <= 15 {
			return candidate, time.Date(candidate.Year(), candidate.Month(), 15, 0, 0, 0, 0, candidate.Location())
		}
		endOfMonth := time.Date(candidate.Year(), candidate.Month()+1, 1, 0, 0, 0, 0, candidate.Location()).AddDate(0, 0, -1)
		return candidate, endOfMonth
	case tenant.PayFrequencyMonthly:
		endOfMonth := time.Date(candidate.Year(), candidate.Month()+1, 1, 0, 0, 0, 0, candidate.Location()).AddDate(0, 0, -1)
		return candidate, endOfMonth
	default: // biweekly
		return candidate, candidate.AddDate(0, 0, 13)
	}
}

// Aggregate recomputes the period's lines from the payable compensation
// entries inside its window. Safe to run repeatedly while the period is
// active; approval freezes the result.
func (s *Service) Aggregate(ctx context.Context, tenantID, periodID string) (*Period, []*Line, error) {
	period, err := s.repo.GetPeriodByID(ctx, tenantID, periodID)
	if err != nil {
		return nil, nil, err
	}
	if !period.Active() {
		return nil, nil, internal.NewValidationError("payroll period is no longer aggregable", internal.ErrCodeInvalidStatus).
			WithDetails(map[string]string{"status": period.Status})
	}

	t, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	jurisdiction, err := s.tenants.GetJurisdiction(ctx, t.JurisdictionCode)
	if err != nil {
		return nil, nil, err
	}
	rules, err := s.tenants.GetContributionRules(ctx, t.JurisdictionCode, period.EndDate.Year())
	if err != nil {
		return nil, nil, err
	}

	entries, err := s.entries.ListPayableEntries(ctx, tenantID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, nil, err
	}

	byWorker := make(map[string][]*compensation.Entry)
	workerOrder := make([]string, 0)
	for _, entry := range entries {
		if _, seen := byWorker[entry.WorkerID]; !seen {
			workerOrder = append(workerOrder, entry.WorkerID)
		}
		byWorker[entry.WorkerID] = append(byWorker[entry.WorkerID], entry)
	}

	lines := make([]*Line, 0, len(byWorker))
	entryIDs := make([]string, 0, len(entries))
	var grossTotal, deductionTotal, netTotal int64

	for _, workerID := range workerOrder {
		workerEntries := byWorker[workerID]
		line, err := s.buildLine(ctx, tenantID, periodID, workerID, workerEntries, jurisdiction, rules)
		if err != nil {
			return nil, nil, err
		}
		lines = append(lines, line)
		grossTotal += line.GrossCents
		deductionTotal += line.DeductionTotal()
		netTotal += line.NetCents
		for _, entry := range workerEntries {
			entryIDs = append(entryIDs, entry.ID)
		}
	}

	if err := s.repo.ReplaceLines(ctx, periodID, lines); err != nil {
		return nil, nil, err
	}
	if err := s.entries.AssignEntriesToPeriod(ctx, tenantID, periodID, entryIDs); err != nil {
		return nil, nil, err
	}

	if period.Status == StatusPending {
		if err := period.Transition(StatusInProgress); err != nil {
			return nil, nil, err
		}
	}
	period.GrossTotalCents = grossTotal
	period.DeductionTotalCents = deductionTotal
	period.NetTotalCents = netTotal
	if err := s.repo.UpdatePeriod(ctx, period); err != nil {
		return nil, nil, err
	}

	s.logger.Info("payroll period aggregated",
		"tenant_id", tenantID,
		"period_id", periodID,
		"workers", len(lines),
		"entries", len(entryIDs),
		"gross_cents", grossTotal,
		"net_cents", netTotal)
	return period, lines, nil
}

// buildLine computes one worker's pay. Hourly entries go through the
// two-pass overtime split; fixed and percentage entries carry their amounts
// verbatim into gross.
func (s *Service) buildLine(ctx context.Context, tenantID, periodID, workerID string, entries []*compensation.Entry, jurisdiction *tenant.Jurisdiction, rules []*tenant.ContributionRule) (*Line, error) {
	var baseCents, cashDeduction int64
	dayIndex := make(map[string]*WorkedDay)
	dayKeys := make([]string, 0)

	for _, entry := range entries {
		baseCents += entry.AmountCents
		if entry.DeductFromPayroll {
			cashDeduction += entry.DeductionCents
		}
		if entry.Model != compensation.ModelHourly {
			continue
		}
		key := dateOnly(entry.WorkDate).Format("2006-01-02")
		day, ok := dayIndex[key]
		if !ok {
			day = &WorkedDay{Date: dateOnly(entry.WorkDate), Rate: entry.Rate}
			dayIndex[key] = day
			dayKeys = append(dayKeys, key)
		}
		day.Hours += entry.HoursWorked
	}
	sort.Strings(dayKeys)

	days := make([]WorkedDay, 0, len(dayKeys))
	for _, key := range dayKeys {
		days = append(days, *dayIndex[key])
	}

	splits := SplitOvertime(days, jurisdiction.DailyOvertimeHours, jurisdiction.WeeklyOvertimeHours)
	regular, overtime := TotalHours(splits)
	premium := OvertimePremiumCents(splits, jurisdiction.OvertimeMultiplier)
	gross := baseCents + premium

	ytd, err := s.withholdingYTD(ctx, tenantID, workerID, rules)
	if err != nil {
		return nil, err
	}
	withholdings := ComputeWithholdings(gross, rules, ytd)

	line := &Line{
		ID:                   uuid.NewString(),
		TenantID:             tenantID,
		PeriodID:             periodID,
		WorkerID:             workerID,
		RegularHours:         regular,
		OvertimeHours:        overtime,
		GrossCents:           gross,
		OvertimePremiumCents: premium,
		CashDeductionCents:   cashDeduction,
		EntryCount:           len(entries),
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
	for _, w := range withholdings {
		switch w.Kind {
		case tenant.ContributionPension:
			line.PensionCents = w.AmountCents
		case tenant.ContributionUnemployment:
			line.UnemploymentCents = w.AmountCents
		}
	}
	line.NetCents = gross - line.DeductionTotal()
	if line.NetCents < 0 {
		s.logger.Warn("payroll line net is negative",
			"worker_id", workerID, "period_id", periodID, "net_cents", line.NetCents)
	}
	return line, nil
}

func (s *Service) withholdingYTD(ctx context.Context, tenantID, workerID string, rules []*tenant.ContributionRule) (map[string]int64, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	pension, unemployment, err := s.repo.SumDeductionsYear(ctx, tenantID, workerID, rules[0].Year)
	if err != nil {
		return nil, err
	}
	return map[string]int64{
		tenant.ContributionPension:      pension,
		tenant.ContributionUnemployment: unemployment,
	}, nil
}

// Approve freezes the period. One-way: there is no unapprove.
func (s *Service) Approve(ctx context.Context, tenantID, periodID string, actor *auth.Actor) (*Period, error) {
	if !actor.HasPermission(auth.PermissionApprovePayroll) {
		s.logger.Warn("payroll approval denied: insufficient permissions",
			"period_id", periodID, "actor_id", actor.ID)
		return nil, internal.ErrUnauthorizedAccess
	}

	period, err := s.repo.GetPeriodByID(ctx, tenantID, periodID)
	if err != nil {
		return nil, err
	}
	if err := period.Transition(StatusApproved); err != nil {
		return nil, err
	}

	now := time.Now()
	period.ApprovedBy = &actor.ID
	period.ApprovedAt = &now
	if err := s.repo.UpdatePeriod(ctx, period); err != nil {
		return nil, err
	}

	s.logger.Info("payroll period approved",
		"tenant_id", tenantID, "period_id", periodID, "actor_id", actor.ID)
	return period, nil
}

// Pay posts the payout to the ledger and marks the member entries paid.
// Wages expense is debited for the full gross; the statutory withholdings
// stay in tax payable and the remainder credits cash. Cash kept by workers
// is part of that cash credit, cancelling the receipt-time debit for money
// the office never physically received.
func (s *Service) Pay(ctx context.Context, tenantID, periodID string, actor *auth.Actor) (*Period, error) {
	if !actor.HasPermission(auth.PermissionApprovePayroll) {
		return nil, internal.ErrUnauthorizedAccess
	}

	period, err := s.repo.GetPeriodByID(ctx, tenantID, periodID)
	if err != nil {
		return nil, err
	}
	if period.Status != StatusApproved {
		return nil, internal.ErrPendingApproval.WithDetails(map[string]string{
			"period_id": periodID,
			"status":    period.Status,
		})
	}

	t, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	payDate := dateOnly(time.Now())
	if err := s.ledger.EnsureOpen(ctx, tenantID, payDate, t.RequireFinancialPeriods); err != nil {
		return nil, err
	}

	lines, err := s.repo.ListLines(ctx, tenantID, periodID)
	if err != nil {
		return nil, err
	}

	var gross, statutory int64
	for _, line := range lines {
		gross += line.GrossCents
		statutory += line.PensionCents + line.UnemploymentCents
	}

	var transactionID string
	if gross > 0 {
		ledgerLines := []ledger.Line{
			{AccountCode: ledger.AccountWagesExpense, Direction: ledger.Debit, AmountCents: gross, Memo: "payroll gross"},
		}
		if statutory > 0 {
			ledgerLines = append(ledgerLines, ledger.Line{
				AccountCode: ledger.AccountTaxPayable, Direction: ledger.Credit, AmountCents: statutory, Memo: "statutory withholdings",
			})
		}
		ledgerLines = append(ledgerLines, ledger.Line{
			AccountCode: ledger.AccountCash, Direction: ledger.Credit, AmountCents: gross - statutory, Memo: "payroll payout",
		})

		transactionID, err = s.ledger.Post(ctx, ledger.Transaction{
			TenantID:   tenantID,
			SourceType: ledger.SourcePayrollPayout,
			SourceID:   periodID,
			Date:       payDate,
			Lines:      ledgerLines,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := s.entries.MarkEntriesPaid(ctx, tenantID, periodID, payDate); err != nil {
		return nil, err
	}

	if err := period.Transition(StatusPaid); err != nil {
		return nil, err
	}
	period.PaidBy = &actor.ID
	period.PaidAt = &payDate
	if transactionID != "" {
		period.LedgerTransactionID = &transactionID
	}
	if err := s.repo.UpdatePeriod(ctx, period); err != nil {
		return nil, err
	}

	s.logger.Info("payroll period paid",
		"tenant_id", tenantID,
		"period_id", periodID,
		"actor_id", actor.ID,
		"gross_cents", gross,
		"ledger_transaction_id", transactionID)
	return period, nil
}

// GetPeriod returns one period with its lines.
func (s *Service) GetPeriod(ctx context.Context, tenantID, periodID string) (*Period, []*Line, error) {
	period, err := s.repo.GetPeriodByID(ctx, tenantID, periodID)
	if err != nil {
		return nil, nil, err
	}
	lines, err := s.repo.ListLines(ctx, tenantID, periodID)
	if err != nil {
		return nil, nil, err
	}
	return period, lines, nil
}

// ListPeriods returns the tenant's payroll history, newest first.
func (s *Service) ListPeriods(ctx context.Context, tenantID string, limit, offset int) ([]*Period, error) {
	return s.repo.ListPeriods(ctx, tenantID, limit, offset)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
