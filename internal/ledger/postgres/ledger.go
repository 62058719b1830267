package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tidywork/finance-engine/internal/ledger"
)

// LedgerRepository implements ledger.Repository using GORM.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) ledger.Repository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) CreatePeriod(ctx context.Context, period *ledger.FinancialPeriod) error {
	return r.db.WithContext(ctx).Create(period).Error
}

func (r *LedgerRepository) GetPeriodByID(ctx context.Context, tenantID, id string) (*ledger.FinancialPeriod, error) {
	var period ledger.FinancialPeriod
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrFinancialPeriodNotFound
		}
		return nil, err
	}
	return &period, nil
}

// FindPeriodCovering is day-inclusive: period bounds are stored at midnight,
// so the probe date is truncated the same way FinancialPeriod.Covers
// truncates. Comparing raw timestamps would let a time-of-day posting on the
// period's last day slip past a closed period.
func (r *LedgerRepository) FindPeriodCovering(ctx context.Context, tenantID string, date time.Time) (*ledger.FinancialPeriod, error) {
	day := date.Truncate(24 * time.Hour)
	var period ledger.FinancialPeriod
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND start_date <= ? AND end_date >= ?", tenantID, day, day).
		Order("start_date DESC").
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrFinancialPeriodNotFound
		}
		return nil, err
	}
	return &period, nil
}

func (r *LedgerRepository) UpdatePeriod(ctx context.Context, period *ledger.FinancialPeriod) error {
	return r.db.WithContext(ctx).Save(period).Error
}

func (r *LedgerRepository) ListPeriods(ctx context.Context, tenantID string) ([]*ledger.FinancialPeriod, error) {
	var periods []*ledger.FinancialPeriod
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("start_date DESC").
		Find(&periods).Error
	return periods, err
}

// CreateEntries appends all rows of one transaction atomically. Rows are
// never updated afterwards.
func (r *LedgerRepository) CreateEntries(ctx context.Context, entries []*ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(entries).Error
	})
}

func (r *LedgerRepository) ListEntriesByTransaction(ctx context.Context, tenantID, transactionID string) ([]*ledger.Entry, error) {
	var entries []*ledger.Entry
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND transaction_id = ?", tenantID, transactionID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *LedgerRepository) ListEntries(ctx context.Context, tenantID string, from, to time.Time, limit, offset int) ([]*ledger.Entry, error) {
	var entries []*ledger.Entry
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entry_date >= ? AND entry_date <= ?", tenantID, from, to).
		Order("entry_date ASC, created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, err
}
