package custody

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tidywork/finance-engine/internal"
	"github.com/tidywork/finance-engine/internal/auth"
	"github.com/tidywork/finance-engine/internal/core/events"
)

// EntryTransitions is the slice of the compensation service custody needs:
// confirming or disputing the deduction on the linked entry.
type EntryTransitions interface {
	Approve(ctx context.Context, tenantID, entryID string) error
	Reject(ctx context.Context, tenantID, entryID string) error
	SetDeduction(ctx context.Context, tenantID, entryID string, deduct bool, deductionCents int64) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Service drives the cash custody state machine.
type Service struct {
	repo    Repository
	entries EntryTransitions
	bus     EventPublisher
	logger  *slog.Logger
}

func NewService(repo Repository, entries EntryTransitions, bus EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		entries: entries,
		bus:     bus,
		logger:  logger,
	}
}

// OpenInput describes cash collected at job completion.
type OpenInput struct {
	TenantID    string
	JobID       string
	WorkerID    string
	AmountCents int64
	Choice      string
}

// OpenForJob records collected cash and immediately routes it by the
// worker's handling choice: kept cash lands in pending_admin_approval with a
// mandatory administrator notification, handed-over cash terminates in
// handed_to_office. Idempotent per job: an existing record is returned
// untouched.
func (s *Service) OpenForJob(ctx context.Context, in OpenInput) (*Record, bool, error) {
	existing, err := s.repo.GetByJobID(ctx, in.TenantID, in.JobID)
	if err != nil && err != ErrRecordNotFound {
		s.logger.Error("failed to check for existing custody record", "error", err, "job_id", in.JobID)
		return nil, false, err
	}
	if existing != nil {
		s.logger.Info("custody record already exists, skipping", "custody_id", existing.ID, "job_id", in.JobID)
		return existing, false, nil
	}

	record := &Record{
		ID:          uuid.NewString(),
		TenantID:    in.TenantID,
		JobID:       in.JobID,
		WorkerID:    in.WorkerID,
		AmountCents: in.AmountCents,
		Status:      StatusOpen,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	switch in.Choice {
	case ChoiceKept:
		if err := record.Transition(StatusKeptByWorker); err != nil {
			return nil, false, err
		}
		if err := record.Transition(StatusPendingAdminApproval); err != nil {
			return nil, false, err
		}
	case ChoiceHanded:
		if err := record.Transition(StatusHandedToOffice); err != nil {
			return nil, false, err
		}
	default:
		s.logger.Warn("unknown cash handling choice, leaving custody open",
			"job_id", in.JobID, "choice", in.Choice)
	}

	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Error("failed to create custody record", "error", err, "job_id", in.JobID)
		return nil, false, err
	}

	s.logger.Info("cash custody record created",
		"custody_id", record.ID,
		"job_id", in.JobID,
		"worker_id", in.WorkerID,
		"amount_cents", in.AmountCents,
		"status", record.Status)

	if record.Status == StatusPendingAdminApproval {
		// Side effect contract: administrators must always hear about kept
		// cash. Fire-and-forget.
		s.bus.Publish(ctx, events.NewCashPendingApprovalEvent(
			record.ID, in.JobID, in.TenantID, in.WorkerID, in.AmountCents))
	}

	return record, true, nil
}

// LinkEntry attaches the compensation entry created for the same job.
func (s *Service) LinkEntry(ctx context.Context, tenantID, recordID, entryID string) error {
	record, err := s.repo.GetByID(ctx, tenantID, recordID)
	if err != nil {
		return err
	}
	record.CompensationEntryID = &entryID
	record.UpdatedAt = time.Now()
	return s.repo.Update(ctx, record)
}

// Approve confirms the payroll deduction for kept cash.
func (s *Service) Approve(ctx context.Context, tenantID, recordID string, actor *auth.Actor) (*Record, error) {
	if !actor.HasPermission(auth.PermissionApproveCash) {
		s.logger.Warn("custody approval denied: insufficient permissions",
			"custody_id", recordID, "actor_id", actor.ID)
		return nil, internal.ErrUnauthorizedAccess
	}

	record, err := s.repo.GetByID(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	if err := record.Transition(StatusApproved); err != nil {
		return nil, err
	}

	now := time.Now()
	record.DecidedBy = &actor.ID
	record.DecidedAt = &now
	if err := s.repo.Update(ctx, record); err != nil {
		s.logger.Error("failed to update custody record", "error", err, "custody_id", recordID)
		return nil, err
	}

	if record.CompensationEntryID != nil {
		if err := s.entries.Approve(ctx, tenantID, *record.CompensationEntryID); err != nil {
			s.logger.Error("failed to approve linked compensation entry",
				"error", err, "custody_id", recordID, "entry_id", *record.CompensationEntryID)
			return nil, err
		}
		// The approval is authoritative for the deduction: confirm it with
		// the custody amount even if the entry was created with a stale one.
		if err := s.entries.SetDeduction(ctx, tenantID, *record.CompensationEntryID, true, record.AmountCents); err != nil {
			s.logger.Error("failed to confirm deduction on linked compensation entry",
				"error", err, "custody_id", recordID, "entry_id", *record.CompensationEntryID)
			return nil, err
		}
	}

	s.logger.Info("cash custody approved", "custody_id", recordID, "actor_id", actor.ID)
	return record, nil
}

// Reject disputes kept cash; manual resolution happens outside this engine.
func (s *Service) Reject(ctx context.Context, tenantID, recordID, reason string, actor *auth.Actor) (*Record, error) {
	if !actor.HasPermission(auth.PermissionApproveCash) {
		s.logger.Warn("custody rejection denied: insufficient permissions",
			"custody_id", recordID, "actor_id", actor.ID)
		return nil, internal.ErrUnauthorizedAccess
	}

	record, err := s.repo.GetByID(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	if err := record.Transition(StatusRejected); err != nil {
		return nil, err
	}

	now := time.Now()
	record.DisputeReason = &reason
	record.DecidedBy = &actor.ID
	record.DecidedAt = &now
	if err := s.repo.Update(ctx, record); err != nil {
		s.logger.Error("failed to update custody record", "error", err, "custody_id", recordID)
		return nil, err
	}

	if record.CompensationEntryID != nil {
		if err := s.entries.Reject(ctx, tenantID, *record.CompensationEntryID); err != nil {
			s.logger.Error("failed to reject linked compensation entry",
				"error", err, "custody_id", recordID, "entry_id", *record.CompensationEntryID)
			return nil, err
		}
		// Disputed cash must not hit payroll until the dispute is resolved.
		if err := s.entries.SetDeduction(ctx, tenantID, *record.CompensationEntryID, false, 0); err != nil {
			s.logger.Error("failed to clear deduction on linked compensation entry",
				"error", err, "custody_id", recordID, "entry_id", *record.CompensationEntryID)
			return nil, err
		}
	}

	s.logger.Info("cash custody rejected", "custody_id", recordID, "actor_id", actor.ID, "reason", reason)
	return record, nil
}

// Resolve closes out a rejected record once the dispute is settled.
func (s *Service) Resolve(ctx context.Context, tenantID, recordID, notes string, actor *auth.Actor) (*Record, error) {
	if !actor.HasPermission(auth.PermissionApproveCash) {
		return nil, internal.ErrUnauthorizedAccess
	}

	record, err := s.repo.GetByID(ctx, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	if err := record.Transition(StatusResolved); err != nil {
		return nil, err
	}

	record.ResolutionNotes = &notes
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("cash custody dispute resolved", "custody_id", recordID, "actor_id", actor.ID)
	return record, nil
}

// ListPendingApprovals returns records awaiting an administrator decision.
func (s *Service) ListPendingApprovals(ctx context.Context, tenantID string, limit, offset int) ([]*Record, error) {
	return s.repo.ListByStatus(ctx, tenantID, StatusPendingAdminApproval, limit, offset)
}
