package completion_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tidywork/finance-engine/internal"
	"github.com/tidywork/finance-engine/internal/auth"
	"github.com/tidywork/finance-engine/internal/billing"
	"github.com/tidywork/finance-engine/internal/compensation"
	"github.com/tidywork/finance-engine/internal/completion"
	"github.com/tidywork/finance-engine/internal/core/events"
	"github.com/tidywork/finance-engine/internal/custody"
	"github.com/tidywork/finance-engine/internal/tenant"
)

func TestCompletionService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Completion Service Suite")
}

// Mock job repository for testing
type mockJobRepository struct {
	jobs        map[string]*completion.Job
	pending     []*completion.Job
	updateError error
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{jobs: make(map[string]*completion.Job)}
}

func (m *mockJobRepository) GetByID(ctx context.Context, tenantID, id string) (*completion.Job, error) {
	job, exists := m.jobs[id]
	if !exists {
		return nil, internal.ErrJobNotFound
	}
	return job, nil
}

func (m *mockJobRepository) Update(ctx context.Context, job *completion.Job) error {
	if m.updateError != nil {
		return m.updateError
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) ListPendingInvoice(ctx context.Context, tenantID string, limit, offset int) ([]*completion.Job, error) {
	return m.pending, nil
}

// Mock custody opener mirroring the real routing by handling choice
type mockCustodyOpener struct {
	records   map[string]*custody.Record
	linked    map[string]string
	openError error
}

func newMockCustodyOpener() *mockCustodyOpener {
	return &mockCustodyOpener{
		records: make(map[string]*custody.Record),
		linked:  make(map[string]string),
	}
}

func (m *mockCustodyOpener) OpenForJob(ctx context.Context, in custody.OpenInput) (*custody.Record, bool, error) {
	if m.openError != nil {
		return nil, false, m.openError
	}
	if existing, exists := m.records[in.JobID]; exists {
		return existing, false, nil
	}

	status := custody.StatusOpen
	switch in.Choice {
	case custody.ChoiceKept:
		status = custody.StatusPendingAdminApproval
	case custody.ChoiceHanded:
		status = custody.StatusHandedToOffice
	}
	record := &custody.Record{
		ID:          uuid.NewString(),
		TenantID:    in.TenantID,
		JobID:       in.JobID,
		WorkerID:    in.WorkerID,
		AmountCents: in.AmountCents,
		Status:      status,
	}
	m.records[in.JobID] = record
	return record, true, nil
}

func (m *mockCustodyOpener) LinkEntry(ctx context.Context, tenantID, recordID, entryID string) error {
	m.linked[recordID] = entryID
	return nil
}

// Mock artifact generator for testing
type mockArtifactGenerator struct {
	artifacts     map[string]*billing.Artifact
	generateError error
}

func newMockArtifactGenerator() *mockArtifactGenerator {
	return &mockArtifactGenerator{artifacts: make(map[string]*billing.Artifact)}
}

func (m *mockArtifactGenerator) Generate(ctx context.Context, in billing.GenerateInput) (*billing.Artifact, bool, error) {
	if m.generateError != nil {
		return nil, false, m.generateError
	}
	if existing, exists := m.artifacts[in.JobID]; exists {
		return existing, false, nil
	}
	artifact := &billing.Artifact{
		ID:            uuid.NewString(),
		TenantID:      in.TenantID,
		JobID:         in.JobID,
		Kind:          in.Kind,
		SubtotalCents: in.BaseCents,
		IssuedAt:      in.Date,
	}
	m.artifacts[in.JobID] = artifact
	return artifact, true, nil
}

// Mock compensation entry creator for testing
type mockEntryCreator struct {
	entries     map[string]*compensation.Entry
	lastInput   compensation.CreateEntryInput
	createError error
}

func newMockEntryCreator() *mockEntryCreator {
	return &mockEntryCreator{entries: make(map[string]*compensation.Entry)}
}

func (m *mockEntryCreator) CreateEntryForJob(ctx context.Context, in compensation.CreateEntryInput) (*compensation.Entry, bool, error) {
	if m.createError != nil {
		return nil, false, m.createError
	}
	m.lastInput = in
	key := in.JobID + "/" + in.WorkerID
	if existing, exists := m.entries[key]; exists {
		return existing, false, nil
	}
	entry := &compensation.Entry{
		ID:                uuid.NewString(),
		TenantID:          in.TenantID,
		JobID:             in.JobID,
		WorkerID:          in.WorkerID,
		Status:            in.InitialStatus,
		DeductFromPayroll: in.DeductFromPayroll,
		DeductionCents:    in.DeductionCents,
	}
	m.entries[key] = entry
	return entry, true, nil
}

// Mock tenant reader for testing
type mockTenantReader struct {
	tenant   *tenant.Tenant
	getError error
}

func (m *mockTenantReader) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.tenant, nil
}

// Mock event publisher for testing
type mockEventPublisher struct {
	published []events.Event
}

func (m *mockEventPublisher) Publish(ctx context.Context, event events.Event) error {
	m.published = append(m.published, event)
	return nil
}

var _ = Describe("CompletionService", func() {
	var (
		service    *completion.Service
		mockJobs   *mockJobRepository
		custodySvc *mockCustodyOpener
		billingSvc *mockArtifactGenerator
		comp       *mockEntryCreator
		tenants    *mockTenantReader
		bus        *mockEventPublisher
		ctx        context.Context
		worker     *auth.Actor
		admin      *auth.Actor
	)

	const (
		tenantID = "tenant-1"
		jobID    = "job-1"
		workerID = "worker-1"
	)

	strPtr := func(s string) *string { return &s }

	newJob := func(status string) *completion.Job {
		assignee := workerID
		return &completion.Job{
			ID:               jobID,
			TenantID:         tenantID,
			ClientName:       "Acme Corp",
			AssignedWorkerID: &assignee,
			Kind:             completion.KindBillableService,
			Status:           status,
			DurationMinutes:  120,
			TotalCents:       12000,
		}
	}

	BeforeEach(func() {
		mockJobs = newMockJobRepository()
		custodySvc = newMockCustodyOpener()
		billingSvc = newMockArtifactGenerator()
		comp = newMockEntryCreator()
		tenants = &mockTenantReader{
			tenant: &tenant.Tenant{
				ID:                   tenantID,
				InvoiceMode:          tenant.InvoiceModeAutomatic,
				HandoverCompensation: tenant.HandoverCompensationPayroll,
			},
		}
		bus = &mockEventPublisher{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = completion.NewService(mockJobs, custodySvc, billingSvc, comp, tenants, bus, logger)
		ctx = context.Background()
		worker = &auth.Actor{ID: "user-1", TenantID: tenantID, WorkerID: workerID}
		admin = &auth.Actor{ID: "admin-1", TenantID: tenantID, Permissions: []string{auth.PermissionAdmin}}
	})

	Describe("StartJob", func() {
		It("should let the assignee start their own job", func() {
			mockJobs.jobs[jobID] = newJob(completion.StatusScheduled)

			job, err := service.StartJob(ctx, tenantID, jobID, worker)

			Expect(err).ToNot(HaveOccurred())
			Expect(job.Status).To(Equal(completion.StatusInProgress))
		})

		It("should deny a worker who is not the assignee", func() {
			mockJobs.jobs[jobID] = newJob(completion.StatusScheduled)
			other := &auth.Actor{ID: "user-2", TenantID: tenantID, WorkerID: "worker-2"}

			_, err := service.StartJob(ctx, tenantID, jobID, other)

			Expect(err).To(Equal(internal.ErrUnauthorizedAccess))
		})

		It("should let an administrator start any job", func() {
			mockJobs.jobs[jobID] = newJob(completion.StatusScheduled)

			_, err := service.StartJob(ctx, tenantID, jobID, admin)

			Expect(err).ToNot(HaveOccurred())
		})
	})

	Describe("CancelJob", func() {
		It("should cancel a scheduled job", func() {
			mockJobs.jobs[jobID] = newJob(completion.StatusScheduled)

			job, err := service.CancelJob(ctx, tenantID, jobID, admin)

			Expect(err).ToNot(HaveOccurred())
			Expect(job.Status).To(Equal(completion.StatusCancelled))
		})

		It("should not cancel a job already in progress", func() {
			mockJobs.jobs[jobID] = newJob(completion.StatusInProgress)

			_, err := service.CancelJob(ctx, tenantID, jobID, admin)

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CompleteJob", func() {
		Context("cash payment kept by the worker", func() {
			var dto completion.CompleteJobDTO

			BeforeEach(func() {
				mockJobs.jobs[jobID] = newJob(completion.StatusInProgress)
				dto = completion.CompleteJobDTO{
					Notes: "all rooms done",
					Payment: &completion.PaymentDTO{
						Method:             completion.PaymentCash,
						AmountCents:        12000,
						CashHandlingChoice: strPtr(custody.ChoiceKept),
					},
				}
			})

			It("should open custody, issue a receipt, and stage the payroll deduction", func() {
				// When
				job, err := service.CompleteJob(ctx, tenantID, jobID, worker, dto)

				// Then
				Expect(err).ToNot(HaveOccurred())
				Expect(job.Status).To(Equal(completion.StatusCompleted))
				Expect(job.CompletedAt).ToNot(BeNil())
				Expect(job.PaymentMethod).ToNot(BeNil())
				Expect(*job.PaymentMethod).To(Equal(completion.PaymentCash))

				record := custodySvc.records[jobID]
				Expect(record).ToNot(BeNil())
				Expect(record.Status).To(Equal(custody.StatusPendingAdminApproval))
				Expect(record.AmountCents).To(Equal(int64(12000)))

				artifact := billingSvc.artifacts[jobID]
				Expect(artifact).ToNot(BeNil())
				Expect(artifact.Kind).To(Equal(billing.KindReceipt))

				entry := comp.entries[jobID+"/"+workerID]
				Expect(entry).ToNot(BeNil())
				Expect(entry.Status).To(Equal(compensation.StatusPendingAdminApproval))
				Expect(entry.DeductFromPayroll).To(BeTrue())
				Expect(entry.DeductionCents).To(Equal(int64(12000)))

				Expect(custodySvc.linked[record.ID]).To(Equal(entry.ID))

				Expect(bus.published).To(HaveLen(1))
				Expect(bus.published[0].EventType()).To(Equal(events.EventTypeJobCompleted))
			})

			It("should be safe to deliver the completion twice", func() {
				// Given
				_, err := service.CompleteJob(ctx, tenantID, jobID, worker, dto)
				Expect(err).ToNot(HaveOccurred())

				// When: the scheduling system retries
				job, err := service.CompleteJob(ctx, tenantID, jobID, worker, dto)

				// Then: no error and no duplicated side effects
				Expect(err).ToNot(HaveOccurred())
				Expect(job.Status).To(Equal(completion.StatusCompleted))
				Expect(custodySvc.records).To(HaveLen(1))
				Expect(billingSvc.artifacts).To(HaveLen(1))
				Expect(comp.entries).To(HaveLen(1))
			})

			It("should not overwrite payment fields on a retried completion", func() {
				_, err := service.CompleteJob(ctx, tenantID, jobID, worker, dto)
				Expect(err).ToNot(HaveOccurred())
				firstDate := mockJobs.jobs[jobID].PaymentAmountCents

				retry := completion.CompleteJobDTO{
					Notes: "retry",
					Payment: &completion.PaymentDTO{
						Method:             completion.PaymentCash,
						AmountCents:        99999,
						CashHandlingChoice: strPtr(custody.ChoiceKept),
					},
				}
				_, err = service.CompleteJob(ctx, tenantID, jobID, worker, retry)

				Expect(err).ToNot(HaveOccurred())
				Expect(mockJobs.jobs[jobID].PaymentAmountCents).To(Equal(firstDate))
			})
		})

		Context("cash handed to the office", func() {
			BeforeEach(func() {
				mockJobs.jobs[jobID] = newJob(completion.StatusInProgress)
			})

			completeHanded := func() *completion.Job {
				job, err := service.CompleteJob(ctx, tenantID, jobID, worker, completion.CompleteJobDTO{
					Payment: &completion.PaymentDTO{
						Method:             completion.PaymentCash,
						AmountCents:        12000,
						CashHandlingChoice: strPtr(custody.ChoiceHanded),
					},
				})
				Expect(err).ToNot(HaveOccurred())
				return job
			}

			It("should create a normal payroll entry under the payroll treatment", func() {
				completeHanded()

				entry := comp.entries[jobID+"/"+workerID]
				Expect(entry.Status).To(Equal(compensation.StatusPending))
				Expect(entry.DeductFromPayroll).To(BeFalse())
			})

			It("should settle the entry out of band when the tenant says so", func() {
				tenants.tenant.HandoverCompensation = tenant.HandoverCompensationOutOfBand

				completeHanded()

				entry := comp.entries[jobID+"/"+workerID]
				Expect(entry.Status).To(Equal(compensation.StatusPaid))
			})
		})

		Context("non-cash payment", func() {
			BeforeEach(func() {
				mockJobs.jobs[jobID] = newJob(completion.StatusInProgress)
			})

			It("should generate an invoice immediately in automatic mode", func() {
				_, err := service.CompleteJob(ctx, tenantID, jobID, worker, completion.CompleteJobDTO{
					Payment: &completion.PaymentDTO{Method: completion.PaymentCard, AmountCents: 12000},
				})

				Expect(err).ToNot(HaveOccurred())
				Expect(billingSvc.artifacts[jobID].Kind).To(Equal(billing.KindInvoice))
				Expect(custodySvc.records).To(BeEmpty())
			})

			It("should defer invoicing in manual mode", func() {
				tenants.tenant.InvoiceMode = tenant.InvoiceModeManual

				_, err := service.CompleteJob(ctx, tenantID, jobID, worker, completion.CompleteJobDTO{
					Payment: &completion.PaymentDTO{Method: completion.PaymentCard, AmountCents: 12000},
				})

				Expect(err).ToNot(HaveOccurred())
				Expect(billingSvc.artifacts).To(BeEmpty())
				// The compensation entry is still created
				Expect(comp.entries).To(HaveLen(1))
			})

			It("should complete without compensation when no payment was recorded", func() {
				_, err := service.CompleteJob(ctx, tenantID, jobID, worker, completion.CompleteJobDTO{Notes: "unpaid"})

				Expect(err).ToNot(HaveOccurred())
				Expect(comp.entries).To(BeEmpty())
				// Automatic mode still bills the configured job total
				Expect(billingSvc.artifacts[jobID].Kind).To(Equal(billing.KindInvoice))
			})
		})

		Context("non-billable visit", func() {
			It("should record notes without any financial artifacts", func() {
				job := newJob(completion.StatusInProgress)
				job.Kind = completion.KindNonBillableVisit
				mockJobs.jobs[jobID] = job

				completed, err := service.CompleteJob(ctx, tenantID, jobID, worker, completion.CompleteJobDTO{Notes: "estimate visit"})

				Expect(err).ToNot(HaveOccurred())
				Expect(completed.Status).To(Equal(completion.StatusCompleted))
				Expect(completed.CompletionNotes).To(Equal("estimate visit"))
				Expect(billingSvc.artifacts).To(BeEmpty())
				Expect(custodySvc.records).To(BeEmpty())
				Expect(comp.entries).To(BeEmpty())
				Expect(bus.published).To(HaveLen(1))
			})
		})

		Context("validation", func() {
			BeforeEach(func() {
				mockJobs.jobs[jobID] = newJob(completion.StatusInProgress)
			})

			It("should require a handling choice for cash payments", func() {
				_, err := service.CompleteJob(ctx, tenantID, jobID, worker, completion.CompleteJobDTO{
					Payment: &completion.PaymentDTO{Method: completion.PaymentCash, AmountCents: 12000},
				})

				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("cash handling choice"))
			})

			It("should reject an unknown payment method", func() {
				_, err := service.CompleteJob(ctx, tenantID, jobID, worker, completion.CompleteJobDTO{
					Payment: &completion.PaymentDTO{Method: "barter", AmountCents: 12000},
				})

				Expect(err).To(HaveOccurred())
			})

			It("should not complete a job that was never started", func() {
				mockJobs.jobs[jobID] = newJob(completion.StatusScheduled)

				_, err := service.CompleteJob(ctx, tenantID, jobID, worker, completion.CompleteJobDTO{})

				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("GenerateInvoiceForJob", func() {
		It("should bill a completed job from the manual queue", func() {
			job := newJob(completion.StatusCompleted)
			method := completion.PaymentCard
			amount := int64(12000)
			job.PaymentMethod = &method
			job.PaymentAmountCents = &amount
			mockJobs.jobs[jobID] = job

			artifact, err := service.GenerateInvoiceForJob(ctx, tenantID, jobID, admin)

			Expect(err).ToNot(HaveOccurred())
			Expect(artifact.Kind).To(Equal(billing.KindInvoice))
		})

		It("should deny an actor without the billing permission", func() {
			mockJobs.jobs[jobID] = newJob(completion.StatusCompleted)

			_, err := service.GenerateInvoiceForJob(ctx, tenantID, jobID, worker)

			Expect(err).To(Equal(internal.ErrUnauthorizedAccess))
		})

		It("should refuse a job that is not completed", func() {
			mockJobs.jobs[jobID] = newJob(completion.StatusInProgress)

			_, err := service.GenerateInvoiceForJob(ctx, tenantID, jobID, admin)

			Expect(err).To(HaveOccurred())
		})

		It("should refuse cash jobs: they are billed by receipt", func() {
			job := newJob(completion.StatusCompleted)
			method := completion.PaymentCash
			amount := int64(12000)
			job.PaymentMethod = &method
			job.PaymentAmountCents = &amount
			mockJobs.jobs[jobID] = job

			_, err := service.GenerateInvoiceForJob(ctx, tenantID, jobID, admin)

			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeDuplicateArtifact))
		})
	})

	Describe("Job.HoursWorked", func() {
		It("should convert the duration to fractional hours", func() {
			job := &completion.Job{DurationMinutes: 90}

			Expect(job.HoursWorked()).To(Equal(1.5))
		})
	})

	Describe("Job.BillingBase", func() {
		It("should prefer the configured job total", func() {
			amount := int64(9000)
			job := &completion.Job{TotalCents: 12000, PaymentAmountCents: &amount}

			Expect(job.BillingBase()).To(Equal(int64(12000)))
		})

		It("should fall back to the recorded payment for unpriced jobs", func() {
			amount := int64(9000)
			job := &completion.Job{PaymentAmountCents: &amount}

			Expect(job.BillingBase()).To(Equal(int64(9000)))
		})
	})
})

var _ = Describe("CompleteJobDTO.Validate", func() {
	It("should accept a completion without payment", func() {
		Expect(completion.CompleteJobDTO{Notes: "done"}.Validate()).To(Succeed())
	})

	It("should reject a non-positive amount", func() {
		dto := completion.CompleteJobDTO{
			Payment: &completion.PaymentDTO{Method: completion.PaymentCard, AmountCents: 0},
		}

		Expect(dto.Validate()).To(HaveOccurred())
	})

	It("should accept the declared cash handling choices", func() {
		for _, choice := range []string{custody.ChoiceKept, custody.ChoiceHanded} {
			c := choice
			dto := completion.CompleteJobDTO{
				Payment: &completion.PaymentDTO{Method: completion.PaymentCash, AmountCents: 12000, CashHandlingChoice: &c},
			}
			Expect(dto.Validate()).To(Succeed())
		}
	})

	It("should reject a cash handling choice outside the custody vocabulary", func() {
		typo := "keept"
		dto := completion.CompleteJobDTO{
			Payment: &completion.PaymentDTO{Method: completion.PaymentCash, AmountCents: 12000, CashHandlingChoice: &typo},
		}

		err := dto.Validate()

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("cash handling choice"))
	})
})

var _ = Describe("Job timestamps", func() {
	It("should stamp UpdatedAt on transition", func() {
		job := &completion.Job{Status: completion.StatusScheduled, UpdatedAt: time.Time{}}

		Expect(job.Transition(completion.StatusInProgress)).To(Succeed())
		Expect(job.UpdatedAt).ToNot(BeZero())
	})
})
