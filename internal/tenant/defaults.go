package tenant

import "context"

// Defaults adapts the repository to the fallback-rate lookups other
// services declare. The boolean reports whether the tenant actually has the
// setting, so callers can fall through to the system default.
type Defaults struct {
	Repo Repository
}

func (d Defaults) DefaultHourlyRate(ctx context.Context, tenantID string) (float64, bool, error) {
	t, err := d.Repo.GetTenant(ctx, tenantID)
	if err != nil {
		return 0, false, err
	}
	if t.DefaultHourlyRate == nil {
		return 0, false, nil
	}
	return *t.DefaultHourlyRate, true, nil
}
