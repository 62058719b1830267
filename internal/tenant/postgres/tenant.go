package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tidywork/finance-engine/internal"
	"github.com/tidywork/finance-engine/internal/tenant"
)

// TenantRepository implements tenant.Repository using GORM.
type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) tenant.Repository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", tenantID).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTenantNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TenantRepository) GetJurisdiction(ctx context.Context, code string) (*tenant.Jurisdiction, error) {
	var j tenant.Jurisdiction
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&j).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.NewConfigurationError("jurisdiction not configured: " + code)
		}
		return nil, err
	}
	return &j, nil
}

func (r *TenantRepository) GetContributionRules(ctx context.Context, jurisdictionCode string, year int) ([]*tenant.ContributionRule, error) {
	var rules []*tenant.ContributionRule
	err := r.db.WithContext(ctx).
		Where("jurisdiction_code = ? AND year = ?", jurisdictionCode, year).
		Order("kind ASC").
		Find(&rules).Error
	return rules, err
}

func (r *TenantRepository) ListTenantIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&tenant.Tenant{}).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}
