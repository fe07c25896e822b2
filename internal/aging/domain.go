package aging

import (
	"time"

	"github.com/shopspring/decimal"
)

// Labels used when a fact carries no creditor type or vendor name.
const (
	DefaultCreditorType = "Lainnya"
	DefaultVendorName   = "Unknown"
)

// InvoiceFact is one payable document as read from storage.
type InvoiceFact struct {
	VendorCode   string
	VendorName   string
	CreditorType string
	InvoiceDate  *time.Time
	ReceivedDate *time.Time
	DPP          decimal.Decimal
	PPN          decimal.Decimal
	// Total is informational only; every aggregate recomputes DPP + PPN.
	Total decimal.Decimal
}

// Bucket accumulates money for one age range.
type Bucket struct {
	DPP   decimal.Decimal `json:"dpp"`
	PPN   decimal.Decimal `json:"ppn"`
	Total decimal.Decimal `json:"total"`
}

func (b *Bucket) add(dpp, ppn decimal.Decimal) {
	b.DPP = b.DPP.Add(dpp)
	b.PPN = b.PPN.Add(ppn)
	b.Total = b.DPP.Add(b.PPN)
}

// Aging holds the four age buckets.
type Aging struct {
	Lt30 Bucket `json:"lt30"`
	Gt30 Bucket `json:"gt30"`
	Gt60 Bucket `json:"gt60"`
	Gt90 Bucket `json:"gt90"`
}

// Bucket returns a pointer to the bucket identified by key.
func (a *Aging) Bucket(key BucketKey) *Bucket {
	switch key {
	case BucketGt30:
		return &a.Gt30
	case BucketGt60:
		return &a.Gt60
	case BucketGt90:
		return &a.Gt90
	default:
		return &a.Lt30
	}
}

// VendorAggregate is the per-vendor row of a creditor group.
type VendorAggregate struct {
	VendorName string          `json:"vendorName"`
	Aging      Aging           `json:"aging"`
	DPP        decimal.Decimal `json:"dpp"`
	PPN        decimal.Decimal `json:"ppn"`
	Total      decimal.Decimal `json:"total"`
}

// Summary carries running totals plus per-bucket totals. It is used for
// creditor subtotals and the grand total.
type Summary struct {
	DPP   decimal.Decimal `json:"dpp"`
	PPN   decimal.Decimal `json:"ppn"`
	Total decimal.Decimal `json:"total"`
	Aging
}

// CreditorGroup groups vendors sharing a creditor type.
type CreditorGroup struct {
	CreditorType string            `json:"creditorType"`
	Vendors      []VendorAggregate `json:"vendors"`
	Subtotal     Summary           `json:"subtotal"`
}

// Report is the aging result for one as-of day.
type Report struct {
	AsOf       string          `json:"asOf"`
	Basis      Policy          `json:"basis"`
	Groups     []CreditorGroup `json:"groups"`
	GrandTotal Summary         `json:"grandTotal"`
}
