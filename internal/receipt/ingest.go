package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/awhite/billfold/internal/scanning"
)

// Ingestor turns a captured image into a persisted receipt: it stores the
// image bytes, runs the vision scanner, and feeds the resulting draft
// through the store. A failed or unparseable scan never fails the capture;
// the fixed fallback extraction is substituted instead.
type Ingestor struct {
	store       *Store
	images      ImageStorage
	scanner     scanning.Scanner
	idGenerator IDGenerator
}

// NewIngestor creates an Ingestor with the default ID generator.
func NewIngestor(store *Store, images ImageStorage, scanner scanning.Scanner) *Ingestor {
	return &Ingestor{
		store:       store,
		images:      images,
		scanner:     scanner,
		idGenerator: &defaultIDGenerator{},
	}
}

// NewIngestorWithDeps creates an Ingestor with custom dependencies for
// testing.
func NewIngestorWithDeps(store *Store, images ImageStorage, scanner scanning.Scanner, idGen IDGenerator) *Ingestor {
	return &Ingestor{
		store:       store,
		images:      images,
		scanner:     scanner,
		idGenerator: idGen,
	}
}

// sanitizeFilename cleans up phone-generated filenames: special characters
// removed, whitespace collapsed, length capped.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")
	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// ProcessCapture stores the image, scans it, and adds the resulting
// receipt through the store. It returns the persisted record as observed
// by the post-write reload.
func (i *Ingestor) ProcessCapture(ctx context.Context, filename string, data []byte, contentType string) (*Receipt, error) {
	uri, err := i.images.Save(fmt.Sprintf("%s_%s", i.idGenerator.Generate(), sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving image: %w", err)
	}

	extraction, err := i.scanner.ScanReceipt(data, contentType)
	if err != nil {
		slog.Warn("Receipt scan failed, using fallback extraction",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		extraction = scanning.FallbackExtraction()
	}

	draft := draftFromExtraction(extraction, uri)
	if err := i.store.AddReceipt(ctx, draft); err != nil {
		i.images.Delete(uri)
		return nil, fmt.Errorf("adding scanned receipt: %w", err)
	}

	receipts := i.store.Receipts()
	if len(receipts) == 0 {
		return nil, fmt.Errorf("reload returned no receipts after capture")
	}
	latest := receipts[0]
	return &latest, nil
}

// draftFromExtraction maps an extraction onto a receipt draft. A zero-item
// extraction is coerced into one placeholder item equal to the total, so
// every receipt carries at least one item.
func draftFromExtraction(ex *scanning.Extraction, imageURI string) ReceiptDraft {
	items := make([]ItemDraft, 0, len(ex.Items))
	for _, item := range ex.Items {
		items = append(items, ItemDraft{
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			Category: item.Category,
		})
	}
	if len(validItems(items)) == 0 {
		items = []ItemDraft{{
			Name:     ex.MerchantName + " purchase",
			Price:    ex.TotalAmount,
			Quantity: 1,
			Category: string(Other),
		}}
	}

	total := ex.TotalAmount
	return ReceiptDraft{
		MerchantName: ex.MerchantName,
		Date:         ex.Date,
		TotalAmount:  &total,
		TaxAmount:    ex.TaxAmount,
		ImageURI:     imageURI,
		Category:     CanonicalizeCategory(guessReceiptCategory(ex)),
		Items:        items,
	}
}

// guessReceiptCategory picks the receipt-level category from the most
// frequent item category.
func guessReceiptCategory(ex *scanning.Extraction) string {
	counts := make(map[string]int)
	best := ""
	for _, item := range ex.Items {
		if item.Category == "" {
			continue
		}
		counts[item.Category]++
		if best == "" || counts[item.Category] > counts[best] {
			best = item.Category
		}
	}
	return best
}
