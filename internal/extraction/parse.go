package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawReceipt mirrors ParsedReceipt with an items pointer so a response
// missing the items array entirely can be told apart from an empty one.
type rawReceipt struct {
	StoreName   *string       `json:"storeName"`
	ReceiptDate *string       `json:"receiptDate"`
	Subtotal    *float64      `json:"subtotal"`
	Tax         *float64      `json:"tax"`
	Tip         *float64      `json:"tip"`
	Discount    *float64      `json:"discount"`
	Total       *float64      `json:"total"`
	Items       *[]ParsedItem `json:"items"`
}

// decodeParsedReceipt turns a model's raw text response into a validated
// ParsedReceipt. Markdown fences and stray prose around the JSON object are
// tolerated; anything that does not decode into the required shape is
// ErrMalformedResult.
func decodeParsedReceipt(text string) (*ParsedReceipt, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - first { to last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformedResult)
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("%w: unterminated JSON object in response", ErrMalformedResult)
	}
	text = text[startIdx : endIdx+1]

	var raw rawReceipt
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	if raw.Items == nil {
		return nil, fmt.Errorf("%w: missing items array", ErrMalformedResult)
	}

	parsed := &ParsedReceipt{
		StoreName:   raw.StoreName,
		ReceiptDate: raw.ReceiptDate,
		Subtotal:    raw.Subtotal,
		Tax:         raw.Tax,
		Tip:         raw.Tip,
		Discount:    raw.Discount,
		Total:       raw.Total,
		Items:       *raw.Items,
	}

	for i, item := range parsed.Items {
		if !item.Confidence.Valid() {
			return nil, fmt.Errorf("%w: item %d has confidence %q", ErrMalformedResult, i, item.Confidence)
		}
		if item.Price != nil && *item.Price < 0 {
			return nil, fmt.Errorf("%w: item %d has negative price", ErrMalformedResult, i)
		}
	}
	for name, v := range map[string]*float64{
		"subtotal": parsed.Subtotal,
		"tax":      parsed.Tax,
		"tip":      parsed.Tip,
		"discount": parsed.Discount,
		"total":    parsed.Total,
	} {
		if v != nil && *v < 0 {
			return nil, fmt.Errorf("%w: negative %s", ErrMalformedResult, name)
		}
	}

	return parsed, nil
}
