package completion

import (
	"errors"
	"time"

	"github.com/tidywork/finance-engine/internal/custody"
)

// PaymentDTO is the structured payment data the scheduling UI attaches to a
// completion call.
type PaymentDTO struct {
	Method             string     `json:"method"`
	AmountCents        int64      `json:"amount_cents"`
	Date               *time.Time `json:"date,omitempty"`
	Reference          *string    `json:"reference,omitempty"`
	ReceivedBy         *string    `json:"received_by,omitempty"`
	CashHandlingChoice *string    `json:"cash_handling_choice,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
}

// CompleteJobDTO is the request payload for marking a job complete.
type CompleteJobDTO struct {
	AfterPhotoRef *string     `json:"after_photo_ref,omitempty"`
	Notes         string      `json:"notes"`
	Payment       *PaymentDTO `json:"payment,omitempty"`
}

func (dto CompleteJobDTO) Validate() error {
	if dto.Payment == nil {
		return nil
	}

	switch dto.Payment.Method {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentCheque:
	default:
		return errors.New("unknown payment method: " + dto.Payment.Method)
	}

	if dto.Payment.AmountCents <= 0 {
		return errors.New("payment amount must be greater than 0")
	}

	if dto.Payment.Method == PaymentCash {
		if dto.Payment.CashHandlingChoice == nil || *dto.Payment.CashHandlingChoice == "" {
			return errors.New("cash payments require a cash handling choice")
		}
		// A typo here would strand the custody record in open, a state no
		// admin action can move.
		switch *dto.Payment.CashHandlingChoice {
		case custody.ChoiceKept, custody.ChoiceHanded:
		default:
			return errors.New("unknown cash handling choice: " + *dto.Payment.CashHandlingChoice)
		}
	}

	return nil
}
