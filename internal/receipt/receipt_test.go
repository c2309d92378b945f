package receipt

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseDate", func() {
	It("parses a calendar date to UTC midnight", func() {
		parsed := ParseDate("2024-06-01")
		Expect(parsed).NotTo(BeNil())
		Expect(*parsed).To(Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	})

	It("rejects anything that is not YYYY-MM-DD", func() {
		for _, input := range []string{
			"06/01/2024",
			"24-06-01",
			"2024-06-01T12:00:00Z",
			"June 1, 2024",
			"",
			"2024-13-40",
		} {
			Expect(ParseDate(input)).To(BeNil(), "input %q", input)
		}
	})
})

var _ = Describe("SanitizePrice", func() {
	It("keeps digits and the first decimal point", func() {
		cases := map[string]float64{
			"12.50":     12.50,
			"$12.50":    12.50,
			"1,234.56":  1234.56,
			"12.50 USD": 12.50,
			"1.2.3":     1.23,
			"7":         7.0,
		}
		for input, expected := range cases {
			price := SanitizePrice(input)
			Expect(price).NotTo(BeNil(), "input %q", input)
			Expect(*price).To(Equal(expected), "input %q", input)
		}
	})

	It("yields nil instead of zero for an empty or garbled edit", func() {
		for _, input := range []string{"", "   ", "free", "."} {
			Expect(SanitizePrice(input)).To(BeNil(), "input %q", input)
		}
	})
})

var _ = Describe("NewFromParsed", func() {
	var (
		idGen *seqIDGenerator
		now   time.Time
	)

	BeforeEach(func() {
		idGen = &seqIDGenerator{prefix: "r"}
		now = time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)
	})

	It("copies null fields through untouched", func() {
		receipt := NewFromParsed(newMockParser().parsed, nil, idGen, now)
		Expect(receipt.Tip).To(BeNil())
		Expect(receipt.Discount).To(BeNil())
		Expect(receipt.ImageRef).To(BeNil())
	})

	It("stamps creation and update times from the clock", func() {
		receipt := NewFromParsed(newMockParser().parsed, nil, idGen, now)
		Expect(receipt.CreatedAt).To(Equal(now))
		Expect(receipt.UpdatedAt).To(Equal(now))
	})

	It("keeps items in extraction order with their own IDs", func() {
		receipt := NewFromParsed(newMockParser().parsed, nil, idGen, now)
		Expect(receipt.ID).To(Equal("r-1"))
		Expect(receipt.Items[0].ID).To(Equal("r-2"))
		Expect(receipt.Items[1].ID).To(Equal("r-3"))
	})
})
