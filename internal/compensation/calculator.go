package compensation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tidywork/finance-engine/internal"
)

// Calculate computes the amount owed to a worker for one job outcome, in
// currency minor units, rounded half-up. Pure: no side effects, no shared
// state.
//
//	hourly:     hoursWorked x rate
//	fixed:      rate, regardless of duration or job value
//	percentage: jobTotal x rate/100
func Calculate(model string, rate float64, hoursWorked float64, jobTotalCents int64) (int64, error) {
	if hoursWorked < 0 {
		return 0, internal.NewConfigurationError("hours worked cannot be negative")
	}
	if rate < 0 {
		return 0, internal.NewConfigurationError("compensation rate cannot be negative")
	}
	if jobTotalCents < 0 {
		return 0, internal.NewConfigurationError("job total cannot be negative")
	}

	switch model {
	case ModelHourly:
		amount := decimal.NewFromFloat(hoursWorked).
			Mul(decimal.NewFromFloat(rate)).
			Mul(decimal.NewFromInt(100))
		return amount.Round(0).IntPart(), nil

	case ModelFixed:
		amount := decimal.NewFromFloat(rate).Mul(decimal.NewFromInt(100))
		return amount.Round(0).IntPart(), nil

	case ModelPercentage:
		amount := decimal.NewFromInt(jobTotalCents).
			Mul(decimal.NewFromFloat(rate)).
			Div(decimal.NewFromInt(100))
		return amount.Round(0).IntPart(), nil

	default:
		return 0, internal.NewConfigurationError(fmt.Sprintf("unknown compensation model: %q", model))
	}
}
