package receipt

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// recentLimit caps the recent-transactions list.
const recentLimit = 5

// CategoryTotal is one entry of the ranked item-level breakdown.
type CategoryTotal struct {
	Category  string  `json:"category"`
	Total     float64 `json:"total"`
	ItemCount int     `json:"itemCount"`
}

// Insights is the derived analytics over a receipt set.
//
// ItemCategoryBreakdown and CategorySpending answer different questions
// and are deliberately kept apart: the former sums item prices by item
// category (what was bought), the latter sums receipt totals by receipt
// category (how the whole purchase was tagged).
type Insights struct {
	TotalSpending         float64            `json:"totalSpending"`
	AverageSpending       float64            `json:"averageSpending"`
	ItemCategoryBreakdown map[string]float64 `json:"itemCategoryBreakdown"`
	CategorySpending      map[string]float64 `json:"categorySpending"`
	TopCategories         []CategoryTotal    `json:"topCategories"`
	RecentTransactions    []Receipt          `json:"recentTransactions"`
}

// effectiveTotal resolves a receipt's spendable total, preferring the
// current field, then the legacy alias, then zero. Malformed values
// degrade to zero rather than poisoning the sums.
func effectiveTotal(r Receipt) float64 {
	total := r.TotalAmount
	if total == 0 {
		total = r.Total
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0
	}
	return total
}

// ComputeInsights derives analytics from the full record set. It is a pure
// function of its input, safe to call repeatedly and concurrently, and an
// empty set yields zeroed results.
func ComputeInsights(receipts []Receipt) Insights {
	totalSpending := decimal.Zero
	categorySpending := make(map[string]decimal.Decimal)
	itemBreakdown := make(map[string]decimal.Decimal)
	itemCounts := make(map[string]int)

	for _, r := range receipts {
		total := decimal.NewFromFloat(effectiveTotal(r))
		totalSpending = totalSpending.Add(total)

		category := string(r.Category)
		if category == "" {
			category = string(Other)
		}
		categorySpending[category] = categorySpending[category].Add(total)

		for _, item := range r.Items {
			price := item.Price
			if math.IsNaN(price) || math.IsInf(price, 0) {
				price = 0
			}
			itemCategory := item.Category
			if itemCategory == "" {
				itemCategory = string(Other)
			}
			itemBreakdown[itemCategory] = itemBreakdown[itemCategory].Add(decimal.NewFromFloat(price))
			itemCounts[itemCategory]++
		}
	}

	average := decimal.Zero
	if len(receipts) > 0 {
		average = totalSpending.Div(decimal.NewFromInt(int64(len(receipts))))
	}

	top := make([]CategoryTotal, 0, len(itemBreakdown))
	for category, total := range itemBreakdown {
		top = append(top, CategoryTotal{
			Category:  category,
			Total:     total.InexactFloat64(),
			ItemCount: itemCounts[category],
		})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Total != top[j].Total {
			return top[i].Total > top[j].Total
		}
		return top[i].Category < top[j].Category
	})

	recent := receipts
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	recentCopy := make([]Receipt, len(recent))
	copy(recentCopy, recent)

	return Insights{
		TotalSpending:         totalSpending.InexactFloat64(),
		AverageSpending:       average.InexactFloat64(),
		ItemCategoryBreakdown: toFloats(itemBreakdown),
		CategorySpending:      toFloats(categorySpending),
		TopCategories:         top,
		RecentTransactions:    recentCopy,
	}
}

func toFloats(totals map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(totals))
	for category, total := range totals {
		out[category] = total.InexactFloat64()
	}
	return out
}
