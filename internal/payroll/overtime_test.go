package payroll_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tidywork/finance-engine/internal/payroll"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

var _ = Describe("SplitOvertime", func() {
	Context("daily threshold", func() {
		It("should flag hours above the daily threshold as overtime", func() {
			// Given: one 10 hour day under an 8h/44h rule
			days := []payroll.WorkedDay{
				{Date: day(2026, time.March, 2), Hours: 10, Rate: 20.00},
			}

			// When
			splits := payroll.SplitOvertime(days, 8, 44)

			// Then
			Expect(splits).To(HaveLen(1))
			Expect(splits[0].RegularHours).To(Equal(8.0))
			Expect(splits[0].OvertimeHours).To(Equal(2.0))
		})

		It("should leave a day at the threshold untouched", func() {
			days := []payroll.WorkedDay{
				{Date: day(2026, time.March, 2), Hours: 8, Rate: 20.00},
			}

			splits := payroll.SplitOvertime(days, 8, 44)

			Expect(splits[0].RegularHours).To(Equal(8.0))
			Expect(splits[0].OvertimeHours).To(Equal(0.0))
		})

		It("should treat a zero daily threshold as no daily rule", func() {
			days := []payroll.WorkedDay{
				{Date: day(2026, time.March, 2), Hours: 12, Rate: 20.00},
			}

			splits := payroll.SplitOvertime(days, 0, 44)

			Expect(splits[0].RegularHours).To(Equal(12.0))
			Expect(splits[0].OvertimeHours).To(Equal(0.0))
		})
	})

	Context("weekly threshold", func() {
		It("should re-flag regular hours past the weekly threshold", func() {
			// Given: six 8 hour days Monday through Saturday, 48 regular
			// hours against a 44h weekly cap
			days := make([]payroll.WorkedDay, 6)
			for i := range days {
				days[i] = payroll.WorkedDay{Date: day(2026, time.March, 2+i), Hours: 8, Rate: 20.00}
			}

			// When
			splits := payroll.SplitOvertime(days, 8, 44)

			// Then: the excess lands on the last day
			regular, overtime := payroll.TotalHours(splits)
			Expect(regular).To(Equal(44.0))
			Expect(overtime).To(Equal(4.0))
			Expect(splits[5].RegularHours).To(Equal(4.0))
			Expect(splits[5].OvertimeHours).To(Equal(4.0))
		})

		It("should not count daily overtime toward the weekly accumulator", func() {
			// Given: five 10 hour days. The daily rule takes 2h/day, leaving
			// 40 regular hours, which stays under the 44h weekly cap.
			days := make([]payroll.WorkedDay, 5)
			for i := range days {
				days[i] = payroll.WorkedDay{Date: day(2026, time.March, 2+i), Hours: 10, Rate: 20.00}
			}

			// When
			splits := payroll.SplitOvertime(days, 8, 44)

			// Then: no hour is counted by both rules
			regular, overtime := payroll.TotalHours(splits)
			Expect(regular).To(Equal(40.0))
			Expect(overtime).To(Equal(10.0))
		})

		It("should reset the accumulator at the Monday week boundary", func() {
			// Given: 40h in the week ending Sunday March 8, then 40h more
			// starting Monday March 9
			days := make([]payroll.WorkedDay, 0, 10)
			for i := 0; i < 5; i++ {
				days = append(days, payroll.WorkedDay{Date: day(2026, time.March, 2+i), Hours: 8, Rate: 20.00})
			}
			for i := 0; i < 5; i++ {
				days = append(days, payroll.WorkedDay{Date: day(2026, time.March, 9+i), Hours: 8, Rate: 20.00})
			}

			// When
			splits := payroll.SplitOvertime(days, 8, 44)

			// Then: neither week crosses 44 on its own
			_, overtime := payroll.TotalHours(splits)
			Expect(overtime).To(Equal(0.0))
		})

		It("should disable the weekly pass when the threshold is zero", func() {
			days := make([]payroll.WorkedDay, 6)
			for i := range days {
				days[i] = payroll.WorkedDay{Date: day(2026, time.March, 2+i), Hours: 8, Rate: 20.00}
			}

			splits := payroll.SplitOvertime(days, 8, 0)

			_, overtime := payroll.TotalHours(splits)
			Expect(overtime).To(Equal(0.0))
		})
	})
})

var _ = Describe("OvertimePremiumCents", func() {
	It("should value overtime at the premium portion of the multiplier", func() {
		// Given: 2 overtime hours at $20/h under a 1.5x rule. The base hour
		// is already inside the entry amount; only the extra half is added.
		splits := []payroll.DaySplit{
			{Date: day(2026, time.March, 2), RegularHours: 8, OvertimeHours: 2, Rate: 20.00},
		}

		premium := payroll.OvertimePremiumCents(splits, 1.5)

		Expect(premium).To(Equal(int64(2000)))
	})

	It("should price each day at its own snapshotted rate", func() {
		// Given: overtime on two days with different rates
		splits := []payroll.DaySplit{
			{Date: day(2026, time.March, 2), RegularHours: 8, OvertimeHours: 1, Rate: 20.00},
			{Date: day(2026, time.March, 3), RegularHours: 8, OvertimeHours: 1, Rate: 30.00},
		}

		premium := payroll.OvertimePremiumCents(splits, 1.5)

		// 1h x 20 x 0.5 + 1h x 30 x 0.5 = 25.00
		Expect(premium).To(Equal(int64(2500)))
	})

	It("should return zero when the multiplier adds nothing", func() {
		splits := []payroll.DaySplit{
			{Date: day(2026, time.March, 2), RegularHours: 8, OvertimeHours: 2, Rate: 20.00},
		}

		Expect(payroll.OvertimePremiumCents(splits, 1.0)).To(Equal(int64(0)))
	})
})
