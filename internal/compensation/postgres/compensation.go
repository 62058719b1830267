package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tidywork/finance-engine/internal"
	"github.com/tidywork/finance-engine/internal/compensation"
)

// CompensationRepository implements compensation.Repository using GORM.
type CompensationRepository struct {
	db *gorm.DB
}

func NewCompensationRepository(db *gorm.DB) compensation.Repository {
	return &CompensationRepository{db: db}
}

func (r *CompensationRepository) GetProfile(ctx context.Context, tenantID, workerID string) (*compensation.WorkerProfile, error) {
	var profile compensation.WorkerProfile
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND worker_id = ?", tenantID, workerID).
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrWorkerNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (r *CompensationRepository) CreateEntry(ctx context.Context, entry *compensation.Entry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *CompensationRepository) GetEntryByID(ctx context.Context, tenantID, id string) (*compensation.Entry, error) {
	var entry compensation.Entry
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, compensation.ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *CompensationRepository) GetEntryByJobAndWorker(ctx context.Context, tenantID, jobID, workerID string) (*compensation.Entry, error) {
	var entry compensation.Entry
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND job_id = ? AND worker_id = ?", tenantID, jobID, workerID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, compensation.ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// ListPayableEntries returns unpaid entries whose work date falls in the
// period, in worked order so the overtime passes see days sequentially.
func (r *CompensationRepository) ListPayableEntries(ctx context.Context, tenantID string, from, to time.Time) ([]*compensation.Entry, error) {
	var entries []*compensation.Entry
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND work_date >= ? AND work_date <= ?", tenantID, from, to).
		Where("status IN ?", []string{compensation.StatusPending, compensation.StatusApproved}).
		Order("worker_id ASC, work_date ASC").
		Find(&entries).Error
	return entries, err
}

func (r *CompensationRepository) UpdateEntryStatus(ctx context.Context, tenantID, id, status string) error {
	return r.db.WithContext(ctx).Model(&compensation.Entry{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *CompensationRepository) SetDeduction(ctx context.Context, tenantID, id string, deduct bool, deductionCents int64) error {
	return r.db.WithContext(ctx).Model(&compensation.Entry{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]interface{}{
			"deduct_from_payroll": deduct,
			"deduction_cents":     deductionCents,
			"updated_at":          time.Now(),
		}).Error
}

func (r *CompensationRepository) AssignEntriesToPeriod(ctx context.Context, tenantID, periodID string, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&compensation.Entry{}).
		Where("tenant_id = ? AND id IN ?", tenantID, entryIDs).
		Updates(map[string]interface{}{
			"payroll_period_id": periodID,
			"updated_at":        time.Now(),
		}).Error
}

func (r *CompensationRepository) MarkEntriesPaid(ctx context.Context, tenantID, periodID string, paidAt time.Time) error {
	return r.db.WithContext(ctx).Model(&compensation.Entry{}).
		Where("tenant_id = ? AND payroll_period_id = ?", tenantID, periodID).
		Where("status IN ?", []string{compensation.StatusPending, compensation.StatusApproved}).
		Updates(map[string]interface{}{
			"status":     compensation.StatusPaid,
			"paid_at":    paidAt,
			"updated_at": time.Now(),
		}).Error
}
