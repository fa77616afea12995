package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/awhite/billfold/internal/receipt"
)

// Responder answers free-text spending questions. The receipt list and
// insights passed in are the only context a responder may read.
type Responder interface {
	Answer(ctx context.Context, question string, receipts []receipt.Receipt, insights receipt.Insights) (string, error)
	Close() error
}

// New selects a responder: Gemini when an API key is configured, the local
// rule-based responder otherwise.
func New(apiKey, modelName string) (Responder, error) {
	if apiKey == "" {
		return NewLocal(), nil
	}
	return NewGemini(apiKey, modelName)
}

// Local answers questions deterministically from the insights, without any
// network call. It also backs the Gemini responder as its failure
// fallback.
type Local struct{}

// NewLocal creates the rule-based responder.
func NewLocal() *Local {
	return &Local{}
}

// Answer matches the question against a few spending intents and renders
// the corresponding insight.
func (l *Local) Answer(ctx context.Context, question string, receipts []receipt.Receipt, insights receipt.Insights) (string, error) {
	q := strings.ToLower(question)

	switch {
	case strings.Contains(q, "average"):
		return fmt.Sprintf("Your average receipt comes to $%.2f across %d receipts.",
			insights.AverageSpending, len(receipts)), nil

	case strings.Contains(q, "categor") || strings.Contains(q, "breakdown"):
		return categoryAnswer(insights), nil

	case strings.Contains(q, "recent") || strings.Contains(q, "last"):
		return recentAnswer(insights), nil

	case strings.Contains(q, "total") || strings.Contains(q, "spent") || strings.Contains(q, "spending"):
		return fmt.Sprintf("You have spent $%.2f in total across %d receipts.",
			insights.TotalSpending, len(receipts)), nil

	default:
		return fmt.Sprintf("You have %d receipts totaling $%.2f. Ask me about totals, categories, averages, or recent purchases.",
			len(receipts), insights.TotalSpending), nil
	}
}

// Close is a no-op for the local responder.
func (l *Local) Close() error {
	return nil
}

func categoryAnswer(insights receipt.Insights) string {
	if len(insights.CategorySpending) == 0 {
		return "No spending recorded yet, so there is nothing to break down."
	}

	type entry struct {
		category string
		total    float64
	}
	entries := make([]entry, 0, len(insights.CategorySpending))
	for category, total := range insights.CategorySpending {
		entries = append(entries, entry{category, total})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].total != entries[j].total {
			return entries[i].total > entries[j].total
		}
		return entries[i].category < entries[j].category
	})

	var b strings.Builder
	b.WriteString("Spending by category:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: $%.2f\n", e.category, e.total)
	}
	return strings.TrimRight(b.String(), "\n")
}

func recentAnswer(insights receipt.Insights) string {
	if len(insights.RecentTransactions) == 0 {
		return "No purchases recorded yet."
	}

	var b strings.Builder
	b.WriteString("Your most recent purchases:\n")
	for _, r := range insights.RecentTransactions {
		fmt.Fprintf(&b, "- %s on %s: $%.2f\n", r.MerchantName, r.Date, r.TotalAmount)
	}
	return strings.TrimRight(b.String(), "\n")
}
