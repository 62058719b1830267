package compensation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tidywork/finance-engine/internal"
)

// TenantDefaults supplies the documented fallback rates. Refreshed per
// invocation, never cached here.
type TenantDefaults interface {
	DefaultHourlyRate(ctx context.Context, tenantID string) (float64, bool, error)
}

// Service creates and transitions compensation entries.
type Service struct {
	repo              Repository
	defaults          TenantDefaults
	systemHourlyRate  float64
	logger            *slog.Logger
}

func NewService(repo Repository, defaults TenantDefaults, systemHourlyRate float64, logger *slog.Logger) *Service {
	return &Service{
		repo:             repo,
		defaults:         defaults,
		systemHourlyRate: systemHourlyRate,
		logger:           logger,
	}
}

// CreateEntryInput describes a completed, worker-assigned job outcome.
type CreateEntryInput struct {
	TenantID          string
	JobID             string
	WorkerID          string
	HoursWorked       float64
	WorkDate          time.Time
	JobTotalCents     int64
	InitialStatus     string
	DeductFromPayroll bool
	DeductionCents    int64
}

// CreateEntryForJob computes and persists the entry for one (job, worker)
// pair. Safe to invoke twice: an existing entry is returned as-is with
// created=false, which is what lets job completion be retried.
func (s *Service) CreateEntryForJob(ctx context.Context, in CreateEntryInput) (*Entry, bool, error) {
	existing, err := s.repo.GetEntryByJobAndWorker(ctx, in.TenantID, in.JobID, in.WorkerID)
	if err != nil && err != ErrEntryNotFound {
		s.logger.Error("failed to check for existing compensation entry",
			"error", err, "job_id", in.JobID, "worker_id", in.WorkerID)
		return nil, false, err
	}
	if existing != nil {
		s.logger.Info("compensation entry already exists, skipping",
			"entry_id", existing.ID, "job_id", in.JobID, "worker_id", in.WorkerID)
		return existing, false, nil
	}

	profile, err := s.repo.GetProfile(ctx, in.TenantID, in.WorkerID)
	if err != nil {
		s.logger.Error("worker profile not found",
			"error", err, "tenant_id", in.TenantID, "worker_id", in.WorkerID)
		return nil, false, err
	}

	rate, err := s.resolveRate(ctx, in.TenantID, profile)
	if err != nil {
		return nil, false, err
	}

	amount, err := Calculate(profile.Model, rate, in.HoursWorked, in.JobTotalCents)
	if err != nil {
		s.logger.Error("compensation calculation failed",
			"error", err, "job_id", in.JobID, "worker_id", in.WorkerID, "model", profile.Model)
		return nil, false, err
	}

	status := in.InitialStatus
	if status == "" {
		status = StatusPending
	}

	entry := &Entry{
		ID:                uuid.NewString(),
		TenantID:          in.TenantID,
		JobID:             in.JobID,
		WorkerID:          in.WorkerID,
		Model:             profile.Model,
		Rate:              rate,
		HoursWorked:       in.HoursWorked,
		WorkDate:          in.WorkDate,
		AmountCents:       amount,
		Status:            status,
		DeductFromPayroll: in.DeductFromPayroll,
		DeductionCents:    in.DeductionCents,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		s.logger.Error("failed to create compensation entry",
			"error", err, "job_id", in.JobID, "worker_id", in.WorkerID)
		return nil, false, err
	}

	s.logger.Info("compensation entry created",
		"entry_id", entry.ID,
		"job_id", in.JobID,
		"worker_id", in.WorkerID,
		"model", profile.Model,
		"amount_cents", amount,
		"status", status)

	return entry, true, nil
}

// resolveRate snapshots the profile rate, falling back to the tenant default
// hourly rate and finally the system default. Fallbacks exist only for the
// hourly model; a fixed or percentage profile without a rate is a
// configuration error.
func (s *Service) resolveRate(ctx context.Context, tenantID string, profile *WorkerProfile) (float64, error) {
	if profile.Rate != nil {
		return *profile.Rate, nil
	}

	if profile.Model != ModelHourly {
		return 0, internal.NewConfigurationError("worker profile has no rate configured for model " + profile.Model)
	}

	rate, ok, err := s.defaults.DefaultHourlyRate(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if ok {
		s.logger.Warn("worker has no hourly rate, using tenant default",
			"tenant_id", tenantID, "worker_id", profile.WorkerID, "rate", rate)
		return rate, nil
	}

	s.logger.Warn("worker has no hourly rate and tenant has no default, using system default",
		"tenant_id", tenantID, "worker_id", profile.WorkerID, "rate", s.systemHourlyRate)
	return s.systemHourlyRate, nil
}

// Approve confirms a pending_admin_approval entry (cash kept by worker).
func (s *Service) Approve(ctx context.Context, tenantID, entryID string) error {
	return s.transition(ctx, tenantID, entryID, StatusPendingAdminApproval, StatusApproved)
}

// Reject marks a disputed entry; resolution happens outside this engine.
func (s *Service) Reject(ctx context.Context, tenantID, entryID string) error {
	return s.transition(ctx, tenantID, entryID, StatusPendingAdminApproval, StatusRejected)
}

// SetDeduction records whether the entry's cash amount comes out of payroll.
// Called by the custody workflow when an administrator decides on kept cash.
func (s *Service) SetDeduction(ctx context.Context, tenantID, entryID string, deduct bool, deductionCents int64) error {
	if err := s.repo.SetDeduction(ctx, tenantID, entryID, deduct, deductionCents); err != nil {
		s.logger.Error("failed to set deduction on compensation entry",
			"error", err, "entry_id", entryID, "deduct", deduct)
		return err
	}
	s.logger.Info("compensation entry deduction updated",
		"entry_id", entryID, "deduct", deduct, "deduction_cents", deductionCents)
	return nil
}

func (s *Service) transition(ctx context.Context, tenantID, entryID, from, to string) error {
	entry, err := s.repo.GetEntryByID(ctx, tenantID, entryID)
	if err != nil {
		return err
	}
	if entry.Status != from {
		s.logger.Warn("compensation entry transition rejected",
			"entry_id", entryID, "current_status", entry.Status, "requested", to)
		return ErrInvalidStatus
	}
	if err := s.repo.UpdateEntryStatus(ctx, tenantID, entryID, to); err != nil {
		s.logger.Error("failed to update compensation entry status",
			"error", err, "entry_id", entryID, "status", to)
		return err
	}
	s.logger.Info("compensation entry transitioned",
		"entry_id", entryID, "from", from, "to", to)
	return nil
}
