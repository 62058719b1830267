package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeJobCompleted        = "job.completed"
	EventTypeCashPendingApproval = "cash.pending_approval"
	EventTypeInvoiceGenerated    = "invoice.generated"
	EventTypeReceiptGenerated    = "receipt.generated"
	EventTypePayrollPeriodEnded  = "payroll.period_ended"
)

type JobCompletedEvent struct {
	BaseEvent
	JobID    string `json:"job_id"`
	TenantID string `json:"tenant_id"`
	WorkerID string `json:"worker_id,omitempty"`
}

func NewJobCompletedEvent(jobID, tenantID, workerID string) *JobCompletedEvent {
	return &JobCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeJobCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"job_id":    jobID,
				"tenant_id": tenantID,
				"worker_id": workerID,
			},
		},
		JobID:    jobID,
		TenantID: tenantID,
		WorkerID: workerID,
	}
}

// CashPendingApprovalEvent is the mandatory administrator notification that
// accompanies every transition into kept_by_worker.
type CashPendingApprovalEvent struct {
	BaseEvent
	CustodyID   string `json:"custody_id"`
	JobID       string `json:"job_id"`
	TenantID    string `json:"tenant_id"`
	WorkerID    string `json:"worker_id"`
	AmountCents int64  `json:"amount_cents"`
}

func NewCashPendingApprovalEvent(custodyID, jobID, tenantID, workerID string, amountCents int64) *CashPendingApprovalEvent {
	return &CashPendingApprovalEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeCashPendingApproval,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"custody_id":   custodyID,
				"job_id":       jobID,
				"tenant_id":    tenantID,
				"worker_id":    workerID,
				"amount_cents": amountCents,
			},
		},
		CustodyID:   custodyID,
		JobID:       jobID,
		TenantID:    tenantID,
		WorkerID:    workerID,
		AmountCents: amountCents,
	}
}

type ArtifactGeneratedEvent struct {
	BaseEvent
	ArtifactID string `json:"artifact_id"`
	JobID      string `json:"job_id"`
	TenantID   string `json:"tenant_id"`
	Number     string `json:"number"`
	TotalCents int64  `json:"total_cents"`
}

func NewArtifactGeneratedEvent(eventType, artifactID, jobID, tenantID, number string, totalCents int64) *ArtifactGeneratedEvent {
	return &ArtifactGeneratedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"artifact_id": artifactID,
				"job_id":      jobID,
				"tenant_id":   tenantID,
				"number":      number,
				"total_cents": totalCents,
			},
		},
		ArtifactID: artifactID,
		JobID:      jobID,
		TenantID:   tenantID,
		Number:     number,
		TotalCents: totalCents,
	}
}

type PayrollPeriodEndedEvent struct {
	BaseEvent
	PeriodID string    `json:"period_id"`
	TenantID string    `json:"tenant_id"`
	EndDate  time.Time `json:"end_date"`
}

func NewPayrollPeriodEndedEvent(periodID, tenantID string, endDate time.Time) *PayrollPeriodEndedEvent {
	return &PayrollPeriodEndedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePayrollPeriodEnded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"period_id": periodID,
				"tenant_id": tenantID,
				"end_date":  endDate,
			},
		},
		PeriodID: periodID,
		TenantID: tenantID,
		EndDate:  endDate,
	}
}
