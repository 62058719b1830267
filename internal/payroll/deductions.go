package payroll

import (
	"github.com/shopspring/decimal"

	"github.com/tidywork/finance-engine/internal/tenant"
)

// Withholding is the amount deducted for one statutory contribution rule.
type Withholding struct {
	Kind        string
	AmountCents int64
}

// ComputeWithholdings applies each contribution rule to the period gross,
// capped by the rule's annual maximum less what was already withheld for the
// worker this year. A worker at the cap contributes nothing further.
func ComputeWithholdings(grossCents int64, rules []*tenant.ContributionRule, ytdByKind map[string]int64) []Withholding {
	withholdings := make([]Withholding, 0, len(rules))
	for _, rule := range rules {
		amount := decimal.NewFromInt(grossCents).
			Mul(decimal.NewFromFloat(rule.EmployeeRatePct)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()

		if rule.AnnualMaxCents > 0 {
			remaining := rule.AnnualMaxCents - ytdByKind[rule.Kind]
			if remaining < 0 {
				remaining = 0
			}
			if amount > remaining {
				amount = remaining
			}
		}

		withholdings = append(withholdings, Withholding{Kind: rule.Kind, AmountCents: amount})
	}
	return withholdings
}
