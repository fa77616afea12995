package receipt

import (
	"strings"
	"time"
)

// Category is the fixed set of receipt-level spending categories.
type Category string

const (
	Groceries      Category = "Groceries"
	Dining         Category = "Dining"
	Shopping       Category = "Shopping"
	Entertainment  Category = "Entertainment"
	Transportation Category = "Transportation"
	Utilities      Category = "Utilities"
	Healthcare     Category = "Healthcare"
	Other          Category = "Other"
)

var allCategories = []Category{
	Groceries,
	Dining,
	Shopping,
	Entertainment,
	Transportation,
	Utilities,
	Healthcare,
	Other,
}

// Categories returns every known category as strings.
func Categories() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// CanonicalizeCategory maps free-form input onto a known category,
// defaulting to Other for anything unrecognized.
func CanonicalizeCategory(input string) Category {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return Other
	}

	synonyms := map[string]Category{
		"grocery":     Groceries,
		"supermarket": Groceries,
		"restaurant":  Dining,
		"food":        Dining,
		"cafe":        Dining,
		"transport":   Transportation,
		"travel":      Transportation,
		"gas":         Transportation,
		"fuel":        Transportation,
		"medical":     Healthcare,
		"pharmacy":    Healthcare,
		"utility":     Utilities,
		"movies":      Entertainment,
	}
	if cat, ok := synonyms[normalized]; ok {
		return cat
	}

	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat
		}
	}
	return Other
}

// UnknownMerchant is substituted when a draft carries no merchant name.
const UnknownMerchant = "Unknown Store"

// dateLayout is the calendar-date format used throughout (ISO 8601 date).
const dateLayout = "2006-01-02"

// Receipt is the canonical, alias-resolved purchase record. The legacy
// field names (store, total, tax) are kept populated alongside the current
// ones so readers of either schema generation see the same values.
type Receipt struct {
	ID           string        `json:"id"`
	MerchantName string        `json:"merchantName"`
	Date         string        `json:"date"` // YYYY-MM-DD
	TotalAmount  float64       `json:"totalAmount"`
	TaxAmount    float64       `json:"taxAmount"`
	ImageURI     string        `json:"imageUri,omitempty"`
	Category     Category      `json:"category"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Items        []ReceiptItem `json:"items"`

	// Legacy aliases, derived on read and never written back.
	Store    string  `json:"store"`
	Total    float64 `json:"total"`
	Tax      float64 `json:"tax"`
	Subtotal float64 `json:"subtotal"`
}

// ReceiptItem is one line entry within a receipt. Its lifetime is bound to
// the owning receipt.
type ReceiptItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Category string  `json:"category"`
}

// ChatMessage is one entry in the assistant conversation log.
type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemDraft describes a line item before persistence assigns it an ID.
type ItemDraft struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Category string  `json:"category"`
}

// ReceiptDraft describes a receipt to be created. Optional fields left at
// their zero value receive documented defaults at write time; TotalAmount
// is a pointer so an absent total can be derived from the items.
type ReceiptDraft struct {
	MerchantName string      `json:"merchantName"`
	Date         string      `json:"date"`
	TotalAmount  *float64    `json:"totalAmount"`
	TaxAmount    float64     `json:"taxAmount"`
	ImageURI     string      `json:"imageUri"`
	Category     Category    `json:"category"`
	Items        []ItemDraft `json:"items"`
}

// ReceiptPatch describes a partial update. Nil fields keep the existing
// value; a non-nil Items slice fully replaces the item set.
type ReceiptPatch struct {
	MerchantName *string     `json:"merchantName"`
	Date         *string     `json:"date"`
	TotalAmount  *float64    `json:"totalAmount"`
	TaxAmount    *float64    `json:"taxAmount"`
	ImageURI     *string     `json:"imageUri"`
	Category     *Category   `json:"category"`
	Items        []ItemDraft `json:"items"`
}

// validItems filters out items that fail the required-field checks.
func validItems(items []ItemDraft) []ItemDraft {
	kept := make([]ItemDraft, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// normalized applies every documented default to a draft and validates it.
// A draft with zero valid items is rejected before any backend call.
func (d ReceiptDraft) normalized(now time.Time) (ReceiptDraft, error) {
	items := validItems(d.Items)
	if len(items) == 0 {
		return ReceiptDraft{}, &ValidationError{Field: "items", Reason: "at least one valid item is required"}
	}
	for i := range items {
		if items[i].Quantity <= 0 {
			items[i].Quantity = 1
		}
		if strings.TrimSpace(items[i].Category) == "" {
			items[i].Category = string(Other)
		}
	}

	out := d
	out.Items = items
	if strings.TrimSpace(out.MerchantName) == "" {
		out.MerchantName = UnknownMerchant
	}
	if out.Date == "" {
		out.Date = now.Format(dateLayout)
	}
	if out.TotalAmount == nil {
		derived := 0.0
		for _, item := range items {
			derived += item.Price * float64(item.Quantity)
		}
		out.TotalAmount = &derived
	}
	if out.Category == "" {
		out.Category = Other
	}
	return out, nil
}

// merged resolves a patch against the existing record, falling back to the
// current value for every field the patch omits, so an update never nulls
// out a field that is not explicitly being changed.
func (p ReceiptPatch) merged(existing Receipt, now time.Time) (ReceiptDraft, error) {
	total := existing.TotalAmount
	draft := ReceiptDraft{
		MerchantName: existing.MerchantName,
		Date:         existing.Date,
		TotalAmount:  &total,
		TaxAmount:    existing.TaxAmount,
		ImageURI:     existing.ImageURI,
		Category:     existing.Category,
	}

	if p.MerchantName != nil {
		draft.MerchantName = *p.MerchantName
	}
	if p.Date != nil {
		draft.Date = *p.Date
	}
	if p.TotalAmount != nil {
		draft.TotalAmount = p.TotalAmount
	}
	if p.TaxAmount != nil {
		draft.TaxAmount = *p.TaxAmount
	}
	if p.ImageURI != nil {
		draft.ImageURI = *p.ImageURI
	}
	if p.Category != nil {
		draft.Category = *p.Category
	}

	if p.Items != nil {
		draft.Items = p.Items
	} else {
		draft.Items = make([]ItemDraft, 0, len(existing.Items))
		for _, item := range existing.Items {
			draft.Items = append(draft.Items, ItemDraft{
				Name:     item.Name,
				Price:    item.Price,
				Quantity: item.Quantity,
				Category: item.Category,
			})
		}
	}

	return draft.normalized(now)
}
