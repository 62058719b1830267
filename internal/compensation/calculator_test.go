package compensation_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tidywork/finance-engine/internal/compensation"
)

var _ = Describe("Calculate", func() {
	Describe("hourly model", func() {
		It("should compute hours times rate in cents", func() {
			amount, err := compensation.Calculate(compensation.ModelHourly, 19.00, 2.0, 12000)

			Expect(err).ToNot(HaveOccurred())
			Expect(amount).To(Equal(int64(3800)))
		})

		It("should round half-up on fractional cents", func() {
			// 1.5h x 18.33 = 27.495 -> 2750 cents, not 2749
			amount, err := compensation.Calculate(compensation.ModelHourly, 18.33, 1.5, 0)

			Expect(err).ToNot(HaveOccurred())
			Expect(amount).To(Equal(int64(2750)))
		})

		It("should return zero for zero hours", func() {
			amount, err := compensation.Calculate(compensation.ModelHourly, 25.00, 0, 12000)

			Expect(err).ToNot(HaveOccurred())
			Expect(amount).To(Equal(int64(0)))
		})
	})

	Describe("fixed model", func() {
		It("should pay the flat rate regardless of hours or job value", func() {
			short, err := compensation.Calculate(compensation.ModelFixed, 85.00, 0.5, 5000)
			Expect(err).ToNot(HaveOccurred())

			long, err := compensation.Calculate(compensation.ModelFixed, 85.00, 9.0, 95000)
			Expect(err).ToNot(HaveOccurred())

			Expect(short).To(Equal(int64(8500)))
			Expect(long).To(Equal(short))
		})
	})

	Describe("percentage model", func() {
		It("should compute the share of the job total", func() {
			amount, err := compensation.Calculate(compensation.ModelPercentage, 40.0, 2.0, 12000)

			Expect(err).ToNot(HaveOccurred())
			Expect(amount).To(Equal(int64(4800)))
		})

		It("should stay exact on amounts that break float arithmetic", func() {
			// 30% of $0.10: 3 cents exactly, no drift
			amount, err := compensation.Calculate(compensation.ModelPercentage, 30.0, 0, 10)

			Expect(err).ToNot(HaveOccurred())
			Expect(amount).To(Equal(int64(3)))
		})
	})

	Describe("invalid inputs", func() {
		It("should reject negative hours", func() {
			_, err := compensation.Calculate(compensation.ModelHourly, 20.0, -1, 0)

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("hours"))
		})

		It("should reject a negative rate", func() {
			_, err := compensation.Calculate(compensation.ModelFixed, -10.0, 0, 0)

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("rate"))
		})

		It("should reject a negative job total", func() {
			_, err := compensation.Calculate(compensation.ModelPercentage, 40.0, 0, -100)

			Expect(err).To(HaveOccurred())
		})

		It("should reject an unknown model", func() {
			_, err := compensation.Calculate("commission", 40.0, 0, 100)

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown compensation model"))
		})
	})
})
