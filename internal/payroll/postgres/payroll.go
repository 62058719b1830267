package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tidywork/finance-engine/internal/payroll"
)

// PayrollRepository implements payroll.Repository using GORM.
type PayrollRepository struct {
	db *gorm.DB
}

func NewPayrollRepository(db *gorm.DB) payroll.Repository {
	return &PayrollRepository{db: db}
}

func (r *PayrollRepository) CreatePeriod(ctx context.Context, period *payroll.Period) error {
	return r.db.WithContext(ctx).Create(period).Error
}

func (r *PayrollRepository) GetPeriodByID(ctx context.Context, tenantID, id string) (*payroll.Period, error) {
	var period payroll.Period
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payroll.ErrPayrollPeriodNotFound
		}
		return nil, err
	}
	return &period, nil
}

func (r *PayrollRepository) GetActivePeriod(ctx context.Context, tenantID string) (*payroll.Period, error) {
	var period payroll.Period
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ?", tenantID, []string{payroll.StatusPending, payroll.StatusInProgress}).
		Order("start_date DESC").
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payroll.ErrPayrollPeriodNotFound
		}
		return nil, err
	}
	return &period, nil
}

func (r *PayrollRepository) GetLastPaidPeriod(ctx context.Context, tenantID string) (*payroll.Period, error) {
	var period payroll.Period
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, payroll.StatusPaid).
		Order("end_date DESC").
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payroll.ErrPayrollPeriodNotFound
		}
		return nil, err
	}
	return &period, nil
}

func (r *PayrollRepository) UpdatePeriod(ctx context.Context, period *payroll.Period) error {
	return r.db.WithContext(ctx).Save(period).Error
}

func (r *PayrollRepository) ListPeriods(ctx context.Context, tenantID string, limit, offset int) ([]*payroll.Period, error) {
	var periods []*payroll.Period
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("start_date DESC").
		Limit(limit).
		Offset(offset).
		Find(&periods).Error
	return periods, err
}

// ReplaceLines swaps out the period's lines atomically. Aggregation always
// rebuilds the full set.
func (r *PayrollRepository) ReplaceLines(ctx context.Context, periodID string, lines []*payroll.Line) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("period_id = ?", periodID).Delete(&payroll.Line{}).Error; err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}
		return tx.Create(lines).Error
	})
}

func (r *PayrollRepository) ListLines(ctx context.Context, tenantID, periodID string) ([]*payroll.Line, error) {
	var lines []*payroll.Line
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period_id = ?", tenantID, periodID).
		Order("worker_id ASC").
		Find(&lines).Error
	return lines, err
}

// SumDeductionsYear totals the statutory amounts already withheld from a
// worker in approved or paid periods ending in the given year. Feeds the
// annual contribution caps.
func (r *PayrollRepository) SumDeductionsYear(ctx context.Context, tenantID, workerID string, year int) (int64, int64, error) {
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := yearStart.AddDate(1, 0, 0)

	type sums struct {
		Pension      int64
		Unemployment int64
	}
	var result sums
	err := r.db.WithContext(ctx).Model(&payroll.Line{}).
		Select("COALESCE(SUM(payroll_lines.pension_cents), 0) AS pension, COALESCE(SUM(payroll_lines.unemployment_cents), 0) AS unemployment").
		Joins("JOIN payroll_periods ON payroll_periods.id = payroll_lines.period_id").
		Where("payroll_lines.tenant_id = ? AND payroll_lines.worker_id = ?", tenantID, workerID).
		Where("payroll_periods.status IN ?", []string{payroll.StatusApproved, payroll.StatusPaid}).
		Where("payroll_periods.end_date >= ? AND payroll_periods.end_date < ?", yearStart, yearEnd).
		Scan(&result).Error
	if err != nil {
		return 0, 0, err
	}
	return result.Pension, result.Unemployment, nil
}

// WithTenantLock serializes payroll maintenance per tenant with a postgres
// transaction-scoped advisory lock. Non-postgres dialects (the sqlite test
// database) fall back to a plain transaction.
func (r *PayrollRepository) WithTenantLock(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", tenantID).Error; err != nil {
				return err
			}
		}
		return fn(ctx)
	})
}
