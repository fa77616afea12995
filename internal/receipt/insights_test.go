package receipt

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ComputeInsights", func() {
	var (
		receipts []Receipt
		insights Insights
	)

	JustBeforeEach(func() {
		insights = ComputeInsights(receipts)
	})

	When("the record set is empty", func() {
		BeforeEach(func() {
			receipts = []Receipt{}
		})

		It("should return zeroed results without raising", func() {
			Expect(insights.TotalSpending).To(BeZero())
			Expect(insights.AverageSpending).To(BeZero())
			Expect(insights.TopCategories).To(BeEmpty())
			Expect(insights.ItemCategoryBreakdown).To(BeEmpty())
			Expect(insights.CategorySpending).To(BeEmpty())
			Expect(insights.RecentTransactions).To(BeEmpty())
		})
	})

	When("receipts carry items tagged differently from the receipt", func() {
		BeforeEach(func() {
			receipts = []Receipt{
				{
					ID:          "1",
					TotalAmount: 20,
					Category:    Groceries,
					Items: []ReceiptItem{
						{Name: "Aspirin", Price: 8, Quantity: 1, Category: "Healthcare"},
						{Name: "Milk", Price: 12, Quantity: 1, Category: "Groceries"},
					},
				},
				{
					ID:          "2",
					TotalAmount: 10,
					Category:    Dining,
					Items: []ReceiptItem{
						{Name: "Lunch", Price: 10, Quantity: 1, Category: "Dining"},
					},
				},
			}
		})

		It("should sum receipt totals into receipt-level spending", func() {
			Expect(insights.CategorySpending).To(Equal(map[string]float64{
				"Groceries": 20,
				"Dining":    10,
			}))
		})

		It("should sum item prices into the item-level breakdown", func() {
			Expect(insights.ItemCategoryBreakdown).To(Equal(map[string]float64{
				"Healthcare": 8,
				"Groceries":  12,
				"Dining":     10,
			}))
		})

		It("should keep the two aggregations independent", func() {
			Expect(insights.CategorySpending).NotTo(HaveKey("Healthcare"))
			Expect(insights.ItemCategoryBreakdown["Groceries"]).NotTo(Equal(insights.CategorySpending["Groceries"]))
		})

		It("should compute total and average spending", func() {
			Expect(insights.TotalSpending).To(Equal(30.0))
			Expect(insights.AverageSpending).To(Equal(15.0))
		})

		It("should rank top categories by summed total with item counts", func() {
			Expect(insights.TopCategories).To(HaveLen(3))
			Expect(insights.TopCategories[0].Category).To(Equal("Groceries"))
			Expect(insights.TopCategories[0].Total).To(Equal(12.0))
			Expect(insights.TopCategories[0].ItemCount).To(Equal(1))
			Expect(insights.TopCategories[1].Category).To(Equal("Dining"))
			Expect(insights.TopCategories[2].Category).To(Equal("Healthcare"))
		})
	})

	When("a receipt carries only the legacy total", func() {
		BeforeEach(func() {
			receipts = []Receipt{{ID: "1", Total: 9.5}}
		})

		It("should fall back to it", func() {
			Expect(insights.TotalSpending).To(Equal(9.5))
		})
	})

	When("a receipt total is malformed", func() {
		BeforeEach(func() {
			receipts = []Receipt{
				{ID: "1", TotalAmount: math.NaN()},
				{ID: "2", TotalAmount: math.Inf(1)},
				{ID: "3", TotalAmount: 5},
			}
		})

		It("should degrade the bad values to zero", func() {
			Expect(insights.TotalSpending).To(Equal(5.0))
		})
	})

	When("more than five receipts exist", func() {
		BeforeEach(func() {
			receipts = nil
			for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
				receipts = append(receipts, Receipt{ID: id, TotalAmount: 1})
			}
		})

		It("should keep only the five most recent, preserving listing order", func() {
			Expect(insights.RecentTransactions).To(HaveLen(5))
			Expect(insights.RecentTransactions[0].ID).To(Equal("1"))
			Expect(insights.RecentTransactions[4].ID).To(Equal("5"))
		})
	})

	When("amounts would accumulate float error", func() {
		BeforeEach(func() {
			receipts = []Receipt{
				{ID: "1", TotalAmount: 0.1},
				{ID: "2", TotalAmount: 0.2},
			}
		})

		It("should sum them exactly", func() {
			Expect(insights.TotalSpending).To(Equal(0.3))
		})
	})
})
