package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tidywork/finance-engine/internal/custody"
)

// CustodyRepository implements custody.Repository using GORM.
type CustodyRepository struct {
	db *gorm.DB
}

func NewCustodyRepository(db *gorm.DB) custody.Repository {
	return &CustodyRepository{db: db}
}

func (r *CustodyRepository) Create(ctx context.Context, record *custody.Record) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *CustodyRepository) GetByID(ctx context.Context, tenantID, id string) (*custody.Record, error) {
	var record custody.Record
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, custody.ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *CustodyRepository) GetByJobID(ctx context.Context, tenantID, jobID string) (*custody.Record, error) {
	var record custody.Record
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND job_id = ?", tenantID, jobID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, custody.ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *CustodyRepository) Update(ctx context.Context, record *custody.Record) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *CustodyRepository) ListByStatus(ctx context.Context, tenantID, status string, limit, offset int) ([]*custody.Record, error) {
	var records []*custody.Record
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	return records, err
}
