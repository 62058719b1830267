package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tidywork/finance-engine/internal"
	"github.com/tidywork/finance-engine/internal/billing"
)

// BillingRepository implements billing.Repository using GORM.
type BillingRepository struct {
	db *gorm.DB
}

func NewBillingRepository(db *gorm.DB) billing.Repository {
	return &BillingRepository{db: db}
}

// NextSequence increments and returns the per (tenant, kind) counter in its
// own transaction. A failure after this commit leaves a gap in the
// numbering, which is the documented trade: gaps over collisions.
func (r *BillingRepository) NextSequence(ctx context.Context, tenantID, kind string) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq billing.Sequence
		err := tx.Where("tenant_id = ? AND kind = ?", tenantID, kind).First(&seq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seq = billing.Sequence{TenantID: tenantID, Kind: kind, Value: 1, UpdatedAt: time.Now()}
			if err := tx.Create(&seq).Error; err != nil {
				return err
			}
			next = 1
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&billing.Sequence{}).
			Where("tenant_id = ? AND kind = ?", tenantID, kind).
			Updates(map[string]interface{}{
				"value":      gorm.Expr("value + 1"),
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}

		var updated billing.Sequence
		if err := tx.Where("tenant_id = ? AND kind = ?", tenantID, kind).First(&updated).Error; err != nil {
			return err
		}
		next = updated.Value
		return nil
	})
	return next, err
}

// CreateArtifact persists the artifact and runs the mandatory post-check in
// the same transaction: if any other artifact exists for the job, the write
// rolls back with DuplicateArtifactError. The unique index on (tenant_id,
// job_id) backstops concurrent writers racing past the count.
func (r *BillingRepository) CreateArtifact(ctx context.Context, artifact *billing.Artifact) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(artifact).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return internal.ErrDuplicateArtifact
			}
			return err
		}

		var count int64
		if err := tx.Model(&billing.Artifact{}).
			Where("tenant_id = ? AND job_id = ? AND id <> ?", artifact.TenantID, artifact.JobID, artifact.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return internal.ErrDuplicateArtifact
		}
		return nil
	})
}

func (r *BillingRepository) GetByID(ctx context.Context, tenantID, id string) (*billing.Artifact, error) {
	var artifact billing.Artifact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&artifact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrArtifactNotFound
		}
		return nil, err
	}
	return &artifact, nil
}

func (r *BillingRepository) GetByJobID(ctx context.Context, tenantID, jobID string) (*billing.Artifact, error) {
	var artifact billing.Artifact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND job_id = ?", tenantID, jobID).
		First(&artifact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrArtifactNotFound
		}
		return nil, err
	}
	return &artifact, nil
}

func (r *BillingRepository) Update(ctx context.Context, artifact *billing.Artifact) error {
	return r.db.WithContext(ctx).Save(artifact).Error
}

func (r *BillingRepository) ListByStatus(ctx context.Context, tenantID, status string, limit, offset int) ([]*billing.Artifact, error) {
	var artifacts []*billing.Artifact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Order("issued_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&artifacts).Error
	return artifacts, err
}

func (r *BillingRepository) ListDraftArtifactIDs(ctx context.Context, tenantID string, from, to time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&billing.Artifact{}).
		Where("tenant_id = ? AND status = ?", tenantID, billing.StatusDraft).
		Where("issued_at >= ? AND issued_at <= ?", from, to).
		Pluck("id", &ids).Error
	return ids, err
}
