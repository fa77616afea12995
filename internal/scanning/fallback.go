package scanning

import "time"

// FallbackExtraction is the fixed placeholder result substituted when the
// vision collaborator fails or returns an unparseable structure, so a
// capture action always yields a persistable record. Callers cannot
// distinguish it structurally from a real extraction.
func FallbackExtraction() *Extraction {
	return &Extraction{
		MerchantName: "Unknown Store",
		Date:         time.Now().Format("2006-01-02"),
		TotalAmount:  0,
		TaxAmount:    0,
		Items: []Item{
			{Name: "Scanned item", Price: 0, Quantity: 1, Category: "Other"},
		},
	}
}
