package payroll

import (
	"context"
	"time"

	"github.com/tidywork/finance-engine/internal/core/events"
)

// TenantLister enumerates the tenants the periodic check walks.
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Checker is the periodic maintenance entry point, invoked from cron. It
// makes sure every tenant has an active payroll period and raises the
// one-time period-ended notification for periods past their end date.
type Checker struct {
	service *Service
	tenants TenantLister
	bus     EventPublisher
}

func NewChecker(service *Service, tenants TenantLister, bus EventPublisher) *Checker {
	return &Checker{
		service: service,
		tenants: tenants,
		bus:     bus,
	}
}

// CheckAllTenants runs the per-tenant check for every tenant. A failing
// tenant is logged and skipped; the walk continues.
func (c *Checker) CheckAllTenants(ctx context.Context) error {
	tenantIDs, err := c.tenants.ListTenantIDs(ctx)
	if err != nil {
		return err
	}

	for _, tenantID := range tenantIDs {
		if err := c.CheckTenant(ctx, tenantID); err != nil {
			c.service.logger.Error("payroll check failed for tenant",
				"error", err, "tenant_id", tenantID)
		}
	}
	return nil
}

// CheckTenant runs the maintenance for one tenant under its advisory lock,
// so concurrent cron invocations and multiple instances never double-notify
// or double-create periods.
func (c *Checker) CheckTenant(ctx context.Context, tenantID string) error {
	// Calls the unlocked variant: the advisory lock is transaction-scoped,
	// so re-locking from inside would open a second transaction and deadlock
	// against our own session.
	return c.service.repo.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		period, err := c.service.currentPeriod(ctx, tenantID)
		if err != nil {
			return err
		}

		today := dateOnly(time.Now())
		if period.EndNotified || !dateOnly(period.EndDate).Before(today) {
			return nil
		}

		period.EndNotified = true
		period.UpdatedAt = time.Now()
		if err := c.service.repo.UpdatePeriod(ctx, period); err != nil {
			return err
		}

		c.service.logger.Info("payroll period ended",
			"tenant_id", tenantID,
			"period_id", period.ID,
			"end", period.EndDate.Format("2006-01-02"))
		c.bus.Publish(ctx, events.NewPayrollPeriodEndedEvent(period.ID, tenantID, period.EndDate))
		return nil
	})
}
