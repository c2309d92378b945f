package receipt

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pateln09/splitsies/internal/extraction"
)

// ReceiptItem is one purchased unit. Name and price stay editable after
// extraction; confidence is set once at extraction time and never
// recomputed. A nil price means "unknown", which is deliberately distinct
// from zero ("free").
type ReceiptItem struct {
	ID         string                `json:"id"`
	Name       *string               `json:"name"`
	Price      *float64              `json:"price"`
	Confidence extraction.Confidence `json:"confidence"`
}

// Receipt is the persisted record of a purchase. Its items are owned and
// stored inline, so deleting a receipt always removes them with it.
//
// No field is ever adjusted to force items to sum to the subtotal or
// total; mismatches are reported, not repaired.
type Receipt struct {
	ID          string        `json:"id"`
	StoreName   *string       `json:"store_name"`
	ReceiptDate *time.Time    `json:"receipt_date"` // calendar date, UTC midnight
	Subtotal    *float64      `json:"subtotal"`
	Tax         *float64      `json:"tax"`
	Tip         *float64      `json:"tip"`
	Discount    *float64      `json:"discount"` // positive magnitude of the reduction
	Total       *float64      `json:"total"`
	ImageRef    *string       `json:"image_ref,omitempty"` // opaque reference into Storage
	Items       []ReceiptItem `json:"items"`               // extraction order
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Item returns the owned item with the given ID, or nil.
func (r *Receipt) Item(id string) *ReceiptItem {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i]
		}
	}
	return nil
}

// Person is a member of the fixed friend group eligible to be assigned
// receipt items.
type Person struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

// NewFromParsed maps an extraction result into a new Receipt. Numeric
// fields are copied as-is with no repair: a null stays null. One
// ReceiptItem is materialized per parsed item, in extraction order.
func NewFromParsed(parsed *extraction.ParsedReceipt, imageRef *string, idGen IDGenerator, now time.Time) *Receipt {
	r := &Receipt{
		ID:        idGen.Generate(),
		StoreName: parsed.StoreName,
		Subtotal:  parsed.Subtotal,
		Tax:       parsed.Tax,
		Tip:       parsed.Tip,
		Discount:  parsed.Discount,
		Total:     parsed.Total,
		ImageRef:  imageRef,
		Items:     make([]ReceiptItem, 0, len(parsed.Items)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parsed.ReceiptDate != nil {
		r.ReceiptDate = ParseDate(*parsed.ReceiptDate)
	}
	for _, item := range parsed.Items {
		r.Items = append(r.Items, ReceiptItem{
			ID:         idGen.Generate(),
			Name:       item.Name,
			Price:      item.Price,
			Confidence: item.Confidence,
		})
	}
	return r
}

// ParseDate accepts exactly one format, YYYY-MM-DD in UTC with no
// time-of-day. Any other literal yields nil rather than a partial guess.
func ParseDate(s string) *time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// SanitizePrice turns a raw price edit into a price. Digits and the first
// decimal point survive, every other character is discarded before
// parsing. An empty or unparsable edit yields nil, not zero, so "unknown"
// never collapses into "free".
func SanitizePrice(input string) *float64 {
	var b strings.Builder
	sawPoint := false
	for _, ch := range input {
		switch {
		case ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == '.' && !sawPoint:
			b.WriteRune(ch)
			sawPoint = true
		}
	}

	cleaned := b.String()
	if cleaned == "" || cleaned == "." {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// sortByDateDesc orders receipts newest first. Undated receipts sort after
// all dated ones; ties break by creation time descending so the latest
// scan stays on top.
func sortByDateDesc(receipts []*Receipt) {
	slices.SortStableFunc(receipts, func(a, b *Receipt) int {
		switch {
		case a.ReceiptDate == nil && b.ReceiptDate == nil:
			return b.CreatedAt.Compare(a.CreatedAt)
		case a.ReceiptDate == nil:
			return 1
		case b.ReceiptDate == nil:
			return -1
		}
		if c := b.ReceiptDate.Compare(*a.ReceiptDate); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
