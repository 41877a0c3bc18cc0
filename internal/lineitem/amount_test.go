package lineitem

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseAmount", func() {
	DescribeTable("accepted formats",
		func(input string, expected Amount) {
			amount, err := ParseAmount(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(amount).To(Equal(expected))
		},
		Entry("comma thousands with glyph", "100,000đ", Amount(100000)),
		Entry("dot thousands with glyph", "50.000đ", Amount(50000)),
		Entry("dong sign", "75.000₫", Amount(75000)),
		Entry("separate glyph", "12.000 đ", Amount(12000)),
		Entry("currency code", "1.250.000VND", Amount(1250000)),
		Entry("bare integer", "45000", Amount(45000)),
		Entry("decimal tail rounds half-up", "53.000,50", Amount(53001)),
		Entry("decimal tail rounds down", "53.000,49", Amount(53000)),
		Entry("negative", "-10,000đ", Amount(-10000)),
		Entry("parenthesized", "(5.000)", Amount(-5000)),
	)

	DescribeTable("rejected input",
		func(input string) {
			_, err := ParseAmount(input)
			Expect(err).To(MatchError(ErrInvalidAmount))
		},
		Entry("empty", ""),
		Entry("letters", "abc"),
		Entry("percentage", "10%"),
		Entry("broken grouping", "10.00.0"),
		Entry("too many digits", "99999999999999999999đ"),
		Entry("too many grouped digits", "99.999.999.999.999.999.999"),
	)
})
