package payroll_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tidywork/finance-engine/internal/auth"
	"github.com/tidywork/finance-engine/internal/compensation"
	"github.com/tidywork/finance-engine/internal/ledger"
	"github.com/tidywork/finance-engine/internal/payroll"
	"github.com/tidywork/finance-engine/internal/tenant"
)

func TestPayroll(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Payroll Suite")
}

var errPeriodClosedForTest = errors.New("financial period closed")

// Mock repository for testing
type mockPayrollRepository struct {
	periods       map[string]*payroll.Period
	lines         map[string][]*payroll.Line
	ytdPension    int64
	ytdUnemploy   int64
	lockCalls     int
	createError   error
	getError      error
	replaceError  error
	sumError      error
}

func newMockPayrollRepository() *mockPayrollRepository {
	return &mockPayrollRepository{
		periods: make(map[string]*payroll.Period),
		lines:   make(map[string][]*payroll.Line),
	}
}

func (m *mockPayrollRepository) CreatePeriod(ctx context.Context, period *payroll.Period) error {
	if m.createError != nil {
		return m.createError
	}
	m.periods[period.ID] = period
	return nil
}

func (m *mockPayrollRepository) GetPeriodByID(ctx context.Context, tenantID, id string) (*payroll.Period, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	period, exists := m.periods[id]
	if !exists {
		return nil, payroll.ErrPayrollPeriodNotFound
	}
	return period, nil
}

func (m *mockPayrollRepository) GetActivePeriod(ctx context.Context, tenantID string) (*payroll.Period, error) {
	for _, period := range m.periods {
		if period.TenantID == tenantID && period.Active() {
			return period, nil
		}
	}
	return nil, payroll.ErrPayrollPeriodNotFound
}

func (m *mockPayrollRepository) GetLastPaidPeriod(ctx context.Context, tenantID string) (*payroll.Period, error) {
	var last *payroll.Period
	for _, period := range m.periods {
		if period.TenantID != tenantID || period.Status != payroll.StatusPaid {
			continue
		}
		if last == nil || period.EndDate.After(last.EndDate) {
			last = period
		}
	}
	if last == nil {
		return nil, payroll.ErrPayrollPeriodNotFound
	}
	return last, nil
}

func (m *mockPayrollRepository) UpdatePeriod(ctx context.Context, period *payroll.Period) error {
	m.periods[period.ID] = period
	return nil
}

func (m *mockPayrollRepository) ListPeriods(ctx context.Context, tenantID string, limit, offset int) ([]*payroll.Period, error) {
	result := make([]*payroll.Period, 0)
	for _, period := range m.periods {
		if period.TenantID == tenantID {
			result = append(result, period)
		}
	}
	return result, nil
}

func (m *mockPayrollRepository) ReplaceLines(ctx context.Context, periodID string, lines []*payroll.Line) error {
	if m.replaceError != nil {
		return m.replaceError
	}
	m.lines[periodID] = lines
	return nil
}

func (m *mockPayrollRepository) ListLines(ctx context.Context, tenantID, periodID string) ([]*payroll.Line, error) {
	return m.lines[periodID], nil
}

func (m *mockPayrollRepository) SumDeductionsYear(ctx context.Context, tenantID, workerID string, year int) (int64, int64, error) {
	if m.sumError != nil {
		return 0, 0, m.sumError
	}
	return m.ytdPension, m.ytdUnemploy, nil
}

func (m *mockPayrollRepository) WithTenantLock(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	m.lockCalls++
	return fn(ctx)
}

// Mock entry source for testing
type mockEntrySource struct {
	entries     []*compensation.Entry
	assigned    map[string][]string
	paidPeriods []string
	listError   error
}

func newMockEntrySource() *mockEntrySource {
	return &mockEntrySource{assigned: make(map[string][]string)}
}

func (m *mockEntrySource) ListPayableEntries(ctx context.Context, tenantID string, from, to time.Time) ([]*compensation.Entry, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	return m.entries, nil
}

func (m *mockEntrySource) AssignEntriesToPeriod(ctx context.Context, tenantID, periodID string, entryIDs []string) error {
	m.assigned[periodID] = entryIDs
	return nil
}

func (m *mockEntrySource) MarkEntriesPaid(ctx context.Context, tenantID, periodID string, paidAt time.Time) error {
	m.paidPeriods = append(m.paidPeriods, periodID)
	return nil
}

// Mock tenant config for testing
type mockTenantConfig struct {
	tenant       *tenant.Tenant
	jurisdiction *tenant.Jurisdiction
	rules        []*tenant.ContributionRule
	getError     error
}

func (m *mockTenantConfig) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.tenant, nil
}

func (m *mockTenantConfig) GetJurisdiction(ctx context.Context, code string) (*tenant.Jurisdiction, error) {
	return m.jurisdiction, nil
}

func (m *mockTenantConfig) GetContributionRules(ctx context.Context, jurisdictionCode string, year int) ([]*tenant.ContributionRule, error) {
	return m.rules, nil
}

// Mock ledger poster for testing
type mockLedgerPoster struct {
	transactions    []ledger.Transaction
	ensureOpenError error
	postError       error
}

func (m *mockLedgerPoster) EnsureOpen(ctx context.Context, tenantID string, date time.Time, requirePeriod bool) error {
	return m.ensureOpenError
}

func (m *mockLedgerPoster) Post(ctx context.Context, tx ledger.Transaction) (string, error) {
	if m.postError != nil {
		return "", m.postError
	}
	m.transactions = append(m.transactions, tx)
	return "tx-" + tx.SourceID, nil
}

var _ = Describe("PayrollService", func() {
	var (
		service  *payroll.Service
		mockRepo *mockPayrollRepository
		entries  *mockEntrySource
		tenants  *mockTenantConfig
		poster   *mockLedgerPoster
		ctx      context.Context
		admin    *auth.Actor
	)

	const tenantID = "tenant-1"

	BeforeEach(func() {
		mockRepo = newMockPayrollRepository()
		entries = newMockEntrySource()
		tenants = &mockTenantConfig{
			tenant: &tenant.Tenant{
				ID:                 tenantID,
				PayFrequency:       tenant.PayFrequencyBiweekly,
				PeriodBoundaryRule: tenant.BoundaryRulePayFrequency,
				JurisdictionCode:   "ON",
			},
			jurisdiction: &tenant.Jurisdiction{
				Code:                "ON",
				DailyOvertimeHours:  8,
				WeeklyOvertimeHours: 44,
				OvertimeMultiplier:  1.5,
			},
			rules: []*tenant.ContributionRule{
				{Kind: tenant.ContributionPension, Year: 2026, EmployeeRatePct: 5.0},
				{Kind: tenant.ContributionUnemployment, Year: 2026, EmployeeRatePct: 1.0},
			},
		}
		poster = &mockLedgerPoster{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = payroll.NewService(mockRepo, entries, tenants, poster, logger)
		ctx = context.Background()
		admin = &auth.Actor{ID: "admin-1", TenantID: tenantID, Permissions: []string{auth.PermissionAdmin}}
	})

	Describe("CurrentPeriod", func() {
		It("should return the active period when one exists", func() {
			// Given
			active := &payroll.Period{
				ID: "p-1", TenantID: tenantID,
				StartDate: day(2026, time.March, 2), EndDate: day(2026, time.March, 15),
				Status: payroll.StatusPending,
			}
			mockRepo.periods["p-1"] = active

			// When
			period, err := service.CurrentPeriod(ctx, tenantID)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(period.ID).To(Equal("p-1"))
			Expect(len(mockRepo.periods)).To(Equal(1))
		})

		It("should serialize on the tenant lock", func() {
			_, err := service.CurrentPeriod(ctx, tenantID)

			Expect(err).ToNot(HaveOccurred())
			Expect(mockRepo.lockCalls).To(Equal(1))
		})

		It("should start the next period the day after the last paid one", func() {
			// Given: a paid period ending Sunday March 15
			mockRepo.periods["p-0"] = &payroll.Period{
				ID: "p-0", TenantID: tenantID,
				StartDate: day(2026, time.March, 2), EndDate: day(2026, time.March, 15),
				Status: payroll.StatusPaid,
			}

			// When
			period, err := service.CurrentPeriod(ctx, tenantID)

			// Then: biweekly window starting Monday March 16
			Expect(err).ToNot(HaveOccurred())
			Expect(period.StartDate).To(Equal(day(2026, time.March, 16)))
			Expect(period.EndDate).To(Equal(day(2026, time.March, 29)))
			Expect(period.Status).To(Equal(payroll.StatusPending))
		})

		It("should snap the start to Monday under the monday_biweekly rule", func() {
			// Given: last paid period ends mid-week
			tenants.tenant.PeriodBoundaryRule = tenant.BoundaryRuleMondayBiweekly
			mockRepo.periods["p-0"] = &payroll.Period{
				ID: "p-0", TenantID: tenantID,
				StartDate: day(2026, time.February, 18), EndDate: day(2026, time.March, 4),
				Status: payroll.StatusPaid,
			}

			// When: candidate start is Thursday March 5
			period, err := service.CurrentPeriod(ctx, tenantID)

			// Then: shifted back to Monday March 2, 14 days long
			Expect(err).ToNot(HaveOccurred())
			Expect(period.StartDate).To(Equal(day(2026, time.March, 2)))
			Expect(period.EndDate).To(Equal(day(2026, time.March, 15)))
		})

		It("should size weekly periods to seven days", func() {
			tenants.tenant.PayFrequency = tenant.PayFrequencyWeekly
			mockRepo.periods["p-0"] = &payroll.Period{
				ID: "p-0", TenantID: tenantID,
				StartDate: day(2026, time.March, 2), EndDate: day(2026, time.March, 8),
				Status: payroll.StatusPaid,
			}

			period, err := service.CurrentPeriod(ctx, tenantID)

			Expect(err).ToNot(HaveOccurred())
			Expect(period.StartDate).To(Equal(day(2026, time.March, 9)))
			Expect(period.EndDate).To(Equal(day(2026, time.March, 15)))
		})

		It("should end a semimonthly period on the 15th for a first-half start", func() {
			tenants.tenant.PayFrequency = tenant.PayFrequencySemimonthly
			mockRepo.periods["p-0"] = &payroll.Period{
				ID: "p-0", TenantID: tenantID,
				StartDate: day(2026, time.February, 16), EndDate: day(2026, time.February, 28),
				Status: payroll.StatusPaid,
			}

			period, err := service.CurrentPeriod(ctx, tenantID)

			Expect(err).ToNot(HaveOccurred())
			Expect(period.StartDate).To(Equal(day(2026, time.March, 1)))
			Expect(period.EndDate).To(Equal(day(2026, time.March, 15)))
		})
	})

	Describe("Aggregate", func() {
		var period *payroll.Period

		BeforeEach(func() {
			period = &payroll.Period{
				ID: "p-1", TenantID: tenantID,
				StartDate: day(2026, time.March, 2), EndDate: day(2026, time.March, 15),
				Status: payroll.StatusPending,
			}
			mockRepo.periods["p-1"] = period
		})

		It("should build a line with overtime premium and statutory deductions", func() {
			// Given: one hourly worker, a single 10 hour day at $20/h
			entries.entries = []*compensation.Entry{
				{
					ID: "e-1", TenantID: tenantID, JobID: "job-1", WorkerID: "worker-1",
					Model: compensation.ModelHourly, Rate: 20.00, HoursWorked: 10,
					WorkDate: day(2026, time.March, 3), AmountCents: 20000,
					Status: compensation.StatusPending,
				},
			}

			// When
			updated, lines, err := service.Aggregate(ctx, tenantID, "p-1")

			// Then: 8 regular + 2 overtime, premium 2 x 20 x 0.5 = $20
			Expect(err).ToNot(HaveOccurred())
			Expect(lines).To(HaveLen(1))
			line := lines[0]
			Expect(line.RegularHours).To(Equal(8.0))
			Expect(line.OvertimeHours).To(Equal(2.0))
			Expect(line.OvertimePremiumCents).To(Equal(int64(2000)))
			Expect(line.GrossCents).To(Equal(int64(22000)))
			Expect(line.PensionCents).To(Equal(int64(1100)))
			Expect(line.UnemploymentCents).To(Equal(int64(220)))
			Expect(line.NetCents).To(Equal(int64(20680)))

			Expect(updated.Status).To(Equal(payroll.StatusInProgress))
			Expect(updated.GrossTotalCents).To(Equal(int64(22000)))
			Expect(updated.NetTotalCents).To(Equal(int64(20680)))
			Expect(entries.assigned["p-1"]).To(Equal([]string{"e-1"}))
		})

		It("should carry fixed entries into gross verbatim and absorb cash deductions", func() {
			// Given: a fixed-model worker who kept $50 of collected cash
			entries.entries = []*compensation.Entry{
				{
					ID: "e-2", TenantID: tenantID, JobID: "job-2", WorkerID: "worker-2",
					Model: compensation.ModelFixed, Rate: 85.00,
					WorkDate: day(2026, time.March, 4), AmountCents: 8500,
					Status:            compensation.StatusApproved,
					DeductFromPayroll: true, DeductionCents: 5000,
				},
			}

			// When
			_, lines, err := service.Aggregate(ctx, tenantID, "p-1")

			// Then: no overtime for non-hourly entries, deduction netted out
			Expect(err).ToNot(HaveOccurred())
			Expect(lines).To(HaveLen(1))
			line := lines[0]
			Expect(line.OvertimeHours).To(Equal(0.0))
			Expect(line.GrossCents).To(Equal(int64(8500)))
			Expect(line.CashDeductionCents).To(Equal(int64(5000)))
			// 8500 - 425 pension - 85 unemployment - 5000 cash
			Expect(line.NetCents).To(Equal(int64(2990)))
		})

		It("should produce one line per worker", func() {
			entries.entries = []*compensation.Entry{
				{ID: "e-1", TenantID: tenantID, JobID: "job-1", WorkerID: "worker-1",
					Model: compensation.ModelHourly, Rate: 20.00, HoursWorked: 4,
					WorkDate: day(2026, time.March, 3), AmountCents: 8000, Status: compensation.StatusPending},
				{ID: "e-2", TenantID: tenantID, JobID: "job-2", WorkerID: "worker-2",
					Model: compensation.ModelFixed, Rate: 85.00,
					WorkDate: day(2026, time.March, 4), AmountCents: 8500, Status: compensation.StatusPending},
				{ID: "e-3", TenantID: tenantID, JobID: "job-3", WorkerID: "worker-1",
					Model: compensation.ModelHourly, Rate: 20.00, HoursWorked: 3,
					WorkDate: day(2026, time.March, 5), AmountCents: 6000, Status: compensation.StatusPending},
			}

			updated, lines, err := service.Aggregate(ctx, tenantID, "p-1")

			Expect(err).ToNot(HaveOccurred())
			Expect(lines).To(HaveLen(2))
			Expect(updated.GrossTotalCents).To(Equal(int64(22500)))
			Expect(entries.assigned["p-1"]).To(HaveLen(3))
		})

		It("should honor the annual cap using year-to-date sums", func() {
			// Given: the worker already hit the pension cap this year
			tenants.rules = []*tenant.ContributionRule{
				{Kind: tenant.ContributionPension, Year: 2026, EmployeeRatePct: 5.0, AnnualMaxCents: 100000},
			}
			mockRepo.ytdPension = 100000
			entries.entries = []*compensation.Entry{
				{ID: "e-1", TenantID: tenantID, JobID: "job-1", WorkerID: "worker-1",
					Model: compensation.ModelHourly, Rate: 20.00, HoursWorked: 4,
					WorkDate: day(2026, time.March, 3), AmountCents: 8000, Status: compensation.StatusPending},
			}

			// When
			_, lines, err := service.Aggregate(ctx, tenantID, "p-1")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(lines[0].PensionCents).To(Equal(int64(0)))
			Expect(lines[0].NetCents).To(Equal(lines[0].GrossCents))
		})

		It("should refuse to aggregate an approved period", func() {
			period.Status = payroll.StatusApproved

			_, _, err := service.Aggregate(ctx, tenantID, "p-1")

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("no longer aggregable"))
		})
	})

	Describe("Approve", func() {
		BeforeEach(func() {
			mockRepo.periods["p-1"] = &payroll.Period{
				ID: "p-1", TenantID: tenantID,
				StartDate: day(2026, time.March, 2), EndDate: day(2026, time.March, 15),
				Status: payroll.StatusInProgress,
			}
		})

		It("should approve and stamp the actor", func() {
			period, err := service.Approve(ctx, tenantID, "p-1", admin)

			Expect(err).ToNot(HaveOccurred())
			Expect(period.Status).To(Equal(payroll.StatusApproved))
			Expect(period.ApprovedBy).ToNot(BeNil())
			Expect(*period.ApprovedBy).To(Equal("admin-1"))
		})

		It("should deny an actor without the payroll permission", func() {
			worker := &auth.Actor{ID: "user-1", TenantID: tenantID}

			_, err := service.Approve(ctx, tenantID, "p-1", worker)

			Expect(err).To(HaveOccurred())
		})

		It("should not approve twice: approval is one-way", func() {
			_, err := service.Approve(ctx, tenantID, "p-1", admin)
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Approve(ctx, tenantID, "p-1", admin)

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Pay", func() {
		BeforeEach(func() {
			mockRepo.periods["p-1"] = &payroll.Period{
				ID: "p-1", TenantID: tenantID,
				StartDate: day(2026, time.March, 2), EndDate: day(2026, time.March, 15),
				Status: payroll.StatusApproved,
			}
			mockRepo.lines["p-1"] = []*payroll.Line{
				{ID: "l-1", TenantID: tenantID, PeriodID: "p-1", WorkerID: "worker-1",
					GrossCents: 22000, PensionCents: 1100, UnemploymentCents: 220, NetCents: 20680},
			}
		})

		It("should post a balanced payout transaction and mark entries paid", func() {
			// When
			period, err := service.Pay(ctx, tenantID, "p-1", admin)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(period.Status).To(Equal(payroll.StatusPaid))
			Expect(period.LedgerTransactionID).ToNot(BeNil())
			Expect(entries.paidPeriods).To(ContainElement("p-1"))

			Expect(poster.transactions).To(HaveLen(1))
			tx := poster.transactions[0]
			Expect(tx.SourceType).To(Equal(ledger.SourcePayrollPayout))
			Expect(tx.Balanced()).To(BeTrue())
			Expect(tx.Lines).To(HaveLen(3))
			Expect(tx.Lines[0].AccountCode).To(Equal(ledger.AccountWagesExpense))
			Expect(tx.Lines[0].AmountCents).To(Equal(int64(22000)))
			Expect(tx.Lines[1].AccountCode).To(Equal(ledger.AccountTaxPayable))
			Expect(tx.Lines[1].AmountCents).To(Equal(int64(1320)))
			Expect(tx.Lines[2].AccountCode).To(Equal(ledger.AccountCash))
			Expect(tx.Lines[2].AmountCents).To(Equal(int64(20680)))
		})

		It("should refuse to pay an unapproved period", func() {
			mockRepo.periods["p-1"].Status = payroll.StatusInProgress

			_, err := service.Pay(ctx, tenantID, "p-1", admin)

			Expect(err).To(HaveOccurred())
			Expect(poster.transactions).To(BeEmpty())
		})

		It("should stop when the financial period is closed for the pay date", func() {
			poster.ensureOpenError = errPeriodClosedForTest

			_, err := service.Pay(ctx, tenantID, "p-1", admin)

			Expect(err).To(Equal(errPeriodClosedForTest))
			Expect(poster.transactions).To(BeEmpty())
			Expect(mockRepo.periods["p-1"].Status).To(Equal(payroll.StatusApproved))
		})
	})
})
