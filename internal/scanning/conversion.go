package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// extractionPrompt is the shared prompt used by all vision providers.
const extractionPrompt = `You are analyzing a photographed receipt. Carefully read all text in the image and extract the following information:

1. **Merchant Name**: the store or business name, usually the largest text at the top of the receipt.

2. **Date**: the purchase date, converted to ISO 8601 format (YYYY-MM-DD).

3. **Total Amount**: the final total or amount due, usually at the bottom, labeled "TOTAL" or similar. Numeric value only.

4. **Tax Amount**: the sales tax or VAT component if printed, else 0.

5. **Line Items**: every purchased item with its name, unit price, quantity, and a one-word category guess (e.g. Groceries, Dining, Healthcare, Other).

Return ONLY valid JSON in this exact format:
{
  "merchantName": "Store Name",
  "date": "YYYY-MM-DD",
  "totalAmount": 0.00,
  "taxAmount": 0.00,
  "items": [
    {"name": "Item name", "price": 0.00, "quantity": 1, "category": "Other"}
  ]
}

Important:
- Amounts must be numbers (not strings), representing dollars and cents
- quantity must be a positive integer
- If you cannot read a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// renderPDF rasterizes the first page of a PDF to PNG. Receipts are almost
// always single page.
func renderPDF(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return encodePNG(img)
}

// decodeCapture decodes JPEG/PNG/GIF via the standard image package and
// HEIC/HEIF (common on phones) via the pure-Go decoder.
func decodeCapture(imageData []byte, mimeType string) (image.Image, error) {
	if isHEIC(imageData, mimeType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format, expected JPEG, PNG, GIF, HEIC, HEIF or PDF: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC reports whether the data or MIME type indicates HEIC/HEIF. HEIC
// files carry an ftyp box at offset 4 with a heif-family brand.
func isHEIC(data []byte, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "image/heic" || mimeType == "image/heif" ||
		strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif") {
		return true
	}
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
	}
	return false
}

// prepareImageData converts any supported capture (PDF, HEIC, JPEG, GIF,
// PNG) to PNG so providers see a single format.
func prepareImageData(imageData []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	if mimeType == "application/pdf" {
		pngData, err := renderPDF(imageData)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, nil
	}

	if mimeType == "image/png" && !isHEIC(imageData, mimeType) {
		return imageData, nil
	}

	img, err := decodeCapture(imageData, mimeType)
	if err != nil {
		return nil, err
	}
	return encodePNG(img)
}
