package scanning

// Item is one extracted line entry.
type Item struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Category string  `json:"category"`
}

// Extraction is the structured result of scanning a receipt image.
type Extraction struct {
	MerchantName string  `json:"merchantName"`
	Date         string  `json:"date"` // ISO 8601 format
	TotalAmount  float64 `json:"totalAmount"`
	TaxAmount    float64 `json:"taxAmount"`
	Items        []Item  `json:"items"`
}

// Scanner defines the interface for receipt scanning operations.
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts its data
	ScanReceipt(imageData []byte, contentType string) (*Extraction, error)
	// Close closes the scanner and releases resources
	Close() error
}
