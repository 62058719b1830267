package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tidywork/finance-engine/internal"
	"github.com/tidywork/finance-engine/internal/completion"
)

// JobRepository implements completion.Repository using GORM.
type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) completion.Repository {
	return &JobRepository{db: db}
}

func (r *JobRepository) GetByID(ctx context.Context, tenantID, id string) (*completion.Job, error) {
	var job completion.Job
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) Update(ctx context.Context, job *completion.Job) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// ListPendingInvoice returns completed billable jobs that have no billing
// artifact yet and were not paid in cash. This is the manual-mode queue.
func (r *JobRepository) ListPendingInvoice(ctx context.Context, tenantID string, limit, offset int) ([]*completion.Job, error) {
	var jobs []*completion.Job
	err := r.db.WithContext(ctx).Model(&completion.Job{}).
		Joins("LEFT JOIN billing_artifacts ON billing_artifacts.job_id = jobs.id AND billing_artifacts.tenant_id = jobs.tenant_id").
		Where("jobs.tenant_id = ?", tenantID).
		Where("jobs.status = ?", completion.StatusCompleted).
		Where("jobs.kind = ?", completion.KindBillableService).
		Where("billing_artifacts.id IS NULL").
		Where("jobs.payment_method IS NULL OR jobs.payment_method <> ?", completion.PaymentCash).
		Order("jobs.completed_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error
	return jobs, err
}
