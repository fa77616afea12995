package receipt

import "time"

// storedReceipt is the record shape at the storage boundary. It carries
// both schema generations: current field names (merchantName, totalAmount,
// taxAmount) and the legacy ones (store, total, tax) that older writers
// used. Reads accept either generation; writes emit only the current one.
type storedReceipt struct {
	ID           string       `json:"id"`
	MerchantName string       `json:"merchantName,omitempty"`
	Store        string       `json:"store,omitempty"`
	Date         string       `json:"date,omitempty"`
	TotalAmount  *float64     `json:"totalAmount,omitempty"`
	Total        *float64     `json:"total,omitempty"`
	TaxAmount    *float64     `json:"taxAmount,omitempty"`
	Tax          *float64     `json:"tax,omitempty"`
	ImageURI     string       `json:"imageUri,omitempty"`
	Category     string       `json:"category,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	Items        []storedItem `json:"items,omitempty"`
}

type storedItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Category string  `json:"category,omitempty"`
}

// resolveAmount applies the alias rule for monetary pairs: prefer the
// current name's value, fall back to the legacy one when the current is
// absent or zero, and default to zero when both are missing.
func resolveAmount(current, legacy *float64) float64 {
	if current != nil && *current != 0 {
		return *current
	}
	if legacy != nil {
		return *legacy
	}
	if current != nil {
		return *current
	}
	return 0
}

// normalize converts a stored record into the canonical Receipt, resolving
// every legacy/current alias pair and substituting documented defaults.
// Both backends route reads through here, since either may hold records
// written by either schema generation.
func normalize(rec storedReceipt) Receipt {
	merchant := rec.MerchantName
	if merchant == "" {
		merchant = rec.Store
	}
	if merchant == "" {
		merchant = UnknownMerchant
	}

	total := resolveAmount(rec.TotalAmount, rec.Total)
	tax := resolveAmount(rec.TaxAmount, rec.Tax)
	subtotal := total - tax
	if subtotal < 0 {
		subtotal = 0
	}

	category := Other
	if rec.Category != "" {
		category = CanonicalizeCategory(rec.Category)
	}

	items := make([]ReceiptItem, 0, len(rec.Items))
	for _, item := range rec.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		itemCategory := item.Category
		if itemCategory == "" {
			itemCategory = string(Other)
		}
		items = append(items, ReceiptItem{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: quantity,
			Category: itemCategory,
		})
	}

	return Receipt{
		ID:           rec.ID,
		MerchantName: merchant,
		Date:         rec.Date,
		TotalAmount:  total,
		TaxAmount:    tax,
		ImageURI:     rec.ImageURI,
		Category:     category,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		Items:        items,

		Store:    merchant,
		Total:    total,
		Tax:      tax,
		Subtotal: subtotal,
	}
}

// denormalize maps a canonical receipt back to the stored shape using
// current field names only. Legacy names are never persisted going
// forward; they remain accepted on read indefinitely.
func denormalize(r Receipt) storedReceipt {
	total := r.TotalAmount
	tax := r.TaxAmount

	items := make([]storedItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, storedItem{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			Category: item.Category,
		})
	}

	return storedReceipt{
		ID:           r.ID,
		MerchantName: r.MerchantName,
		Date:         r.Date,
		TotalAmount:  &total,
		TaxAmount:    &tax,
		ImageURI:     r.ImageURI,
		Category:     string(r.Category),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		Items:        items,
	}
}
