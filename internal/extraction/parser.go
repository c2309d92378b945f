package extraction

// Confidence is the extraction-time legibility estimate for one item.
// It is set once by the parser and never recomputed; it does not affect
// any computation downstream.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is one of the three allowed levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// ParsedItem is one extracted line item. A multi-quantity line on the
// physical receipt arrives as one ParsedItem per unit.
type ParsedItem struct {
	Name       *string    `json:"name"`
	Price      *float64   `json:"price"`
	Confidence Confidence `json:"confidence"`
}

// ParsedReceipt is the structured result of scanning a receipt image.
// Nil fields mean the value was unreadable; the parser never guesses and
// never adjusts values to make them reconcile with each other.
type ParsedReceipt struct {
	StoreName   *string      `json:"storeName"`
	ReceiptDate *string      `json:"receiptDate"` // YYYY-MM-DD when determinable
	Subtotal    *float64     `json:"subtotal"`
	Tax         *float64     `json:"tax"`
	Tip         *float64     `json:"tip"`
	Discount    *float64     `json:"discount"` // positive magnitude
	Total       *float64     `json:"total"`
	Items       []ParsedItem `json:"items"`
}

// Parser defines the interface for receipt extraction backends.
type Parser interface {
	// ParseReceipt analyzes a receipt image/PDF and extracts its contents
	ParseReceipt(imageData []byte, contentType string) (*ParsedReceipt, error)
	// Close closes the parser and releases resources
	Close() error
}
