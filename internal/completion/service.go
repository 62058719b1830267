package completion

import (
	"context"
	"log/slog"
	"time"

	"github.com/tidywork/finance-engine/internal"
	"github.com/tidywork/finance-engine/internal/auth"
	"github.com/tidywork/finance-engine/internal/billing"
	"github.com/tidywork/finance-engine/internal/compensation"
	"github.com/tidywork/finance-engine/internal/core/events"
	"github.com/tidywork/finance-engine/internal/custody"
	"github.com/tidywork/finance-engine/internal/tenant"
)

// CustodyOpener is the slice of the custody service the processor calls.
type CustodyOpener interface {
	OpenForJob(ctx context.Context, in custody.OpenInput) (*custody.Record, bool, error)
	LinkEntry(ctx context.Context, tenantID, recordID, entryID string) error
}

// ArtifactGenerator is the slice of the billing service the processor calls.
type ArtifactGenerator interface {
	Generate(ctx context.Context, in billing.GenerateInput) (*billing.Artifact, bool, error)
}

// EntryCreator is the slice of the compensation service the processor calls.
type EntryCreator interface {
	CreateEntryForJob(ctx context.Context, in compensation.CreateEntryInput) (*compensation.Entry, bool, error)
}

type TenantReader interface {
	GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Service is the job completion event processor: the entry point external
// collaborators call when a scheduled job changes state. Every financial
// step it orchestrates is individually idempotent, so a retried delivery
// re-runs the sequence and only fills in whatever is still missing.
type Service struct {
	jobs    Repository
	custody CustodyOpener
	billing ArtifactGenerator
	comp    EntryCreator
	tenants TenantReader
	bus     EventPublisher
	logger  *slog.Logger
}

func NewService(jobs Repository, custodySvc CustodyOpener, billingSvc ArtifactGenerator, comp EntryCreator, tenants TenantReader, bus EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		jobs:    jobs,
		custody: custodySvc,
		billing: billingSvc,
		comp:    comp,
		tenants: tenants,
		bus:     bus,
		logger:  logger,
	}
}

// StartJob moves a scheduled job to in_progress. Only the assignee starts
// their own job.
func (s *Service) StartJob(ctx context.Context, tenantID, jobID string, actor *auth.Actor) (*Job, error) {
	job, err := s.jobs.GetByID(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAssignee(job, actor); err != nil {
		return nil, err
	}
	if err := job.Transition(StatusInProgress); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("job started", "job_id", jobID, "actor_id", actor.ID)
	return job, nil
}

// CancelJob cancels a scheduled job. No financial artifacts are involved.
func (s *Service) CancelJob(ctx context.Context, tenantID, jobID string, actor *auth.Actor) (*Job, error) {
	job, err := s.jobs.GetByID(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Transition(StatusCancelled); err != nil {
		return nil, err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("job cancelled", "job_id", jobID, "actor_id", actor.ID)
	return job, nil
}

// CompleteJob runs the full completion sequence:
//
//  1. non-billable visits record notes only
//  2. cash payments open custody and produce a Receipt, never an Invoice
//  3. other payments produce an Invoice now (automatic mode) or queue the
//     job for explicit generation (manual mode)
//  4. an assigned worker with recorded payment gets a compensation entry
//
// Safe to invoke twice for the same transition: an already-completed job
// re-runs the financial steps, each of which no-ops when its record exists.
func (s *Service) CompleteJob(ctx context.Context, tenantID, jobID string, actor *auth.Actor, dto CompleteJobDTO) (*Job, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	job, err := s.jobs.GetByID(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAssignee(job, actor); err != nil {
		return nil, err
	}

	if job.Status != StatusCompleted {
		if err := job.Transition(StatusCompleted); err != nil {
			return nil, err
		}
		now := time.Now()
		job.CompletedAt = &now
		s.applyCompletionData(job, dto)
		if err := s.jobs.Update(ctx, job); err != nil {
			s.logger.Error("failed to persist job completion", "error", err, "job_id", jobID)
			return nil, err
		}
	} else {
		s.logger.Info("job already completed, re-running financial steps", "job_id", jobID)
	}

	if job.Kind == KindNonBillableVisit {
		s.logger.Info("non-billable visit completed, no financial artifacts", "job_id", jobID)
		s.publishCompleted(ctx, job)
		return job, nil
	}

	if err := s.processFinancials(ctx, job); err != nil {
		return nil, err
	}

	s.publishCompleted(ctx, job)
	return job, nil
}

// applyCompletionData appends payment fields onto the job. Fields are only
// ever appended at completion, never overwritten on retry.
func (s *Service) applyCompletionData(job *Job, dto CompleteJobDTO) {
	job.CompletionNotes = dto.Notes
	if dto.AfterPhotoRef != nil {
		job.AfterPhotoRef = dto.AfterPhotoRef
	}
	if dto.Payment == nil || job.PaymentMethod != nil {
		return
	}

	method := dto.Payment.Method
	amount := dto.Payment.AmountCents
	job.PaymentMethod = &method
	job.PaymentAmountCents = &amount
	job.PaymentDate = dto.Payment.Date
	job.PaymentReference = dto.Payment.Reference
	job.PaymentReceivedBy = dto.Payment.ReceivedBy
	job.CashHandlingChoice = dto.Payment.CashHandlingChoice
	job.PaymentNotes = dto.Payment.Notes
}

func (s *Service) processFinancials(ctx context.Context, job *Job) error {
	t, err := s.tenants.GetTenant(ctx, job.TenantID)
	if err != nil {
		return err
	}

	var custodyRecord *custody.Record

	if job.CashPayment() {
		custodyRecord, err = s.processCash(ctx, job)
		if err != nil {
			return err
		}
	} else if t.InvoiceMode == tenant.InvoiceModeAutomatic {
		if _, _, err := s.billing.Generate(ctx, billing.GenerateInput{
			TenantID:    job.TenantID,
			JobID:       job.ID,
			Kind:        billing.KindInvoice,
			BaseCents:   job.BillingBase(),
			Date:        s.artifactDate(job),
			Description: job.ClientName,
		}); err != nil {
			return err
		}
	} else {
		// Manual mode: the job stays discoverable through the
		// pending-invoice queue until someone generates explicitly.
		s.logger.Info("invoice generation deferred to manual queue", "job_id", job.ID)
	}

	if job.AssignedWorkerID != nil && job.PaymentRecorded() {
		entry, created, err := s.createCompensation(ctx, job, t, custodyRecord)
		if err != nil {
			return err
		}
		if created && custodyRecord != nil {
			if err := s.custody.LinkEntry(ctx, job.TenantID, custodyRecord.ID, entry.ID); err != nil {
				return err
			}
		}
	}

	return nil
}

// processCash opens custody and generates the client-facing Receipt. The
// invoice path is suppressed entirely for cash jobs.
func (s *Service) processCash(ctx context.Context, job *Job) (*custody.Record, error) {
	choice := ""
	if job.CashHandlingChoice != nil {
		choice = *job.CashHandlingChoice
	}
	workerID := ""
	if job.AssignedWorkerID != nil {
		workerID = *job.AssignedWorkerID
	}

	record, _, err := s.custody.OpenForJob(ctx, custody.OpenInput{
		TenantID:    job.TenantID,
		JobID:       job.ID,
		WorkerID:    workerID,
		AmountCents: *job.PaymentAmountCents,
		Choice:      choice,
	})
	if err != nil {
		return nil, err
	}

	if _, _, err := s.billing.Generate(ctx, billing.GenerateInput{
		TenantID:    job.TenantID,
		JobID:       job.ID,
		Kind:        billing.KindReceipt,
		BaseCents:   job.BillingBase(),
		Date:        s.artifactDate(job),
		Description: job.ClientName,
	}); err != nil {
		return nil, err
	}

	return record, nil
}

// createCompensation derives the entry's initial status from the custody
// outcome: kept cash waits on administrator approval with the amount staged
// as a payroll deduction; handed-over cash follows the tenant's configured
// treatment.
func (s *Service) createCompensation(ctx context.Context, job *Job, t *tenant.Tenant, custodyRecord *custody.Record) (*compensation.Entry, bool, error) {
	in := compensation.CreateEntryInput{
		TenantID:      job.TenantID,
		JobID:         job.ID,
		WorkerID:      *job.AssignedWorkerID,
		HoursWorked:   job.HoursWorked(),
		WorkDate:      s.artifactDate(job),
		JobTotalCents: job.BillingBase(),
		InitialStatus: compensation.StatusPending,
	}

	if custodyRecord != nil {
		switch custodyRecord.Status {
		case custody.StatusPendingAdminApproval, custody.StatusKeptByWorker:
			in.InitialStatus = compensation.StatusPendingAdminApproval
			in.DeductFromPayroll = true
			in.DeductionCents = custodyRecord.AmountCents
		case custody.StatusHandedToOffice:
			if t.HandoverCompensation == tenant.HandoverCompensationOutOfBand {
				in.InitialStatus = compensation.StatusPaid
			}
		case custody.StatusOpen:
			in.InitialStatus = compensation.StatusPendingHandover
		}
	}

	return s.comp.CreateEntryForJob(ctx, in)
}

// GenerateInvoiceForJob explicitly bills a job sitting in the manual
// pending-invoice queue.
func (s *Service) GenerateInvoiceForJob(ctx context.Context, tenantID, jobID string, actor *auth.Actor) (*billing.Artifact, error) {
	if !actor.HasPermission(auth.PermissionManageBilling) {
		return nil, internal.ErrUnauthorizedAccess
	}

	job, err := s.jobs.GetByID(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusCompleted {
		return nil, internal.NewValidationError("only completed jobs can be invoiced", internal.ErrCodeInvalidStatus)
	}
	if job.CashPayment() {
		// Cash jobs get receipts, never invoices.
		return nil, internal.ErrDuplicateArtifact.WithDetails(map[string]string{
			"reason": "cash jobs are billed by receipt",
		})
	}

	artifact, _, err := s.billing.Generate(ctx, billing.GenerateInput{
		TenantID:    tenantID,
		JobID:       jobID,
		Kind:        billing.KindInvoice,
		BaseCents:   job.BillingBase(),
		Date:        s.artifactDate(job),
		Description: job.ClientName,
	})
	return artifact, err
}

// ListPendingInvoiceJobs returns the manual-mode queue: completed billable
// jobs without an artifact and without cash payment.
func (s *Service) ListPendingInvoiceJobs(ctx context.Context, tenantID string, limit, offset int) ([]*Job, error) {
	return s.jobs.ListPendingInvoice(ctx, tenantID, limit, offset)
}

func (s *Service) checkAssignee(job *Job, actor *auth.Actor) error {
	if actor.HasPermission(auth.PermissionAdmin) {
		return nil
	}
	if actor.WorkerID == "" {
		return internal.ErrUnauthorizedAccess
	}
	if job.AssignedWorkerID == nil || *job.AssignedWorkerID != actor.WorkerID {
		s.logger.Warn("job transition denied: actor is not the assignee",
			"job_id", job.ID, "actor_worker_id", actor.WorkerID)
		return internal.ErrUnauthorizedAccess
	}
	return nil
}

// artifactDate picks the financial date for a completion: payment date,
// else completion time, else now.
func (s *Service) artifactDate(job *Job) time.Time {
	if job.PaymentDate != nil {
		return *job.PaymentDate
	}
	if job.CompletedAt != nil {
		return *job.CompletedAt
	}
	return time.Now()
}

func (s *Service) publishCompleted(ctx context.Context, job *Job) {
	workerID := ""
	if job.AssignedWorkerID != nil {
		workerID = *job.AssignedWorkerID
	}
	s.bus.Publish(ctx, events.NewJobCompletedEvent(job.ID, job.TenantID, workerID))
}
