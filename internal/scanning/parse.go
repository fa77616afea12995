package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// parseExtractionJSON parses the model's response into an Extraction,
// tolerating markdown fencing and surrounding prose.
func parseExtractionJSON(text string) (*Extraction, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data Extraction
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Date = recoverDate(data.Date)

	data.MerchantName = strings.TrimSpace(data.MerchantName)
	if data.MerchantName == "" {
		data.MerchantName = "Unknown Store"
	}

	for i := range data.Items {
		data.Items[i].Name = strings.TrimSpace(data.Items[i].Name)
		if data.Items[i].Quantity <= 0 {
			data.Items[i].Quantity = 1
		}
	}

	return &data, nil
}

// recoverDate normalizes a model-reported date to YYYY-MM-DD, trying a few
// common formats and falling back to today.
func recoverDate(raw string) string {
	if raw == "" {
		return time.Now().Format("2006-01-02")
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed.Format("2006-01-02")
	}
	formats := []string{
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
	}
	for _, format := range formats {
		if parsed, err := time.Parse(format, raw); err == nil {
			return parsed.Format("2006-01-02")
		}
	}
	return time.Now().Format("2006-01-02")
}
