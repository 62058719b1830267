package payroll_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tidywork/finance-engine/internal/payroll"
	"github.com/tidywork/finance-engine/internal/tenant"
)

var _ = Describe("ComputeWithholdings", func() {
	var rules []*tenant.ContributionRule

	BeforeEach(func() {
		rules = []*tenant.ContributionRule{
			{Kind: tenant.ContributionPension, Year: 2026, EmployeeRatePct: 5.95, AnnualMaxCents: 402600},
			{Kind: tenant.ContributionUnemployment, Year: 2026, EmployeeRatePct: 1.64, AnnualMaxCents: 104900},
		}
	})

	It("should apply each rule's rate to the gross", func() {
		// Given
		gross := int64(100000)

		// When
		withholdings := payroll.ComputeWithholdings(gross, rules, nil)

		// Then
		Expect(withholdings).To(HaveLen(2))
		Expect(withholdings[0].Kind).To(Equal(tenant.ContributionPension))
		Expect(withholdings[0].AmountCents).To(Equal(int64(5950)))
		Expect(withholdings[1].Kind).To(Equal(tenant.ContributionUnemployment))
		Expect(withholdings[1].AmountCents).To(Equal(int64(1640)))
	})

	It("should cap the amount at the annual maximum less year-to-date", func() {
		// Given: the worker is 200 cents away from the pension cap
		ytd := map[string]int64{
			tenant.ContributionPension: 402400,
		}

		// When
		withholdings := payroll.ComputeWithholdings(100000, rules, ytd)

		// Then: only the remainder is withheld
		Expect(withholdings[0].AmountCents).To(Equal(int64(200)))
		Expect(withholdings[1].AmountCents).To(Equal(int64(1640)))
	})

	It("should withhold nothing for a worker already at the cap", func() {
		ytd := map[string]int64{
			tenant.ContributionPension:      402600,
			tenant.ContributionUnemployment: 200000,
		}

		withholdings := payroll.ComputeWithholdings(100000, rules, ytd)

		Expect(withholdings[0].AmountCents).To(Equal(int64(0)))
		Expect(withholdings[1].AmountCents).To(Equal(int64(0)))
	})

	It("should ignore the cap when the rule has no annual maximum", func() {
		uncapped := []*tenant.ContributionRule{
			{Kind: tenant.ContributionPension, Year: 2026, EmployeeRatePct: 5.0},
		}
		ytd := map[string]int64{tenant.ContributionPension: 9999999}

		withholdings := payroll.ComputeWithholdings(100000, uncapped, ytd)

		Expect(withholdings[0].AmountCents).To(Equal(int64(5000)))
	})

	It("should return an empty set when the jurisdiction has no rules", func() {
		withholdings := payroll.ComputeWithholdings(100000, nil, nil)

		Expect(withholdings).To(BeEmpty())
	})
})
