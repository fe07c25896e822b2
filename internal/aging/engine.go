// Package aging buckets payable facts by age and rolls them up per vendor and
// creditor type.
package aging

import (
	"time"

	"github.com/shopspring/decimal"
)

// BucketKey identifies one of the four age ranges.
type BucketKey int

const (
	BucketLt30 BucketKey = iota
	BucketGt30
	BucketGt60
	BucketGt90
)

func (k BucketKey) String() string {
	switch k {
	case BucketGt30:
		return "gt30"
	case BucketGt60:
		return "gt60"
	case BucketGt90:
		return "gt90"
	default:
		return "lt30"
	}
}

// BucketFor returns the first bucket whose upper bound covers ageDays.
func BucketFor(ageDays int) BucketKey {
	switch {
	case ageDays <= 30:
		return BucketLt30
	case ageDays <= 60:
		return BucketGt30
	case ageDays <= 90:
		return BucketGt60
	default:
		return BucketGt90
	}
}

// Aggregate builds the report for facts as of asOf.
func Aggregate(facts []InvoiceFact, asOf time.Time, policy Policy) Report {
	b := NewReportBuilder(asOf, policy)
	for _, f := range facts {
		b.Add(f)
	}
	return b.Build()
}

// ReportBuilder accumulates facts in first-seen order. It is not safe for
// concurrent use.
type ReportBuilder struct {
	day    time.Time
	policy Policy
	groups []*groupState
	index  map[string]int
	grand  Summary
}

type groupState struct {
	creditorType string
	vendors      []*VendorAggregate
	index        map[string]int
	subtotal     Summary
}

// NewReportBuilder starts an empty report for asOf.
func NewReportBuilder(asOf time.Time, policy Policy) *ReportBuilder {
	if policy == "" {
		policy = PolicyReceivedDateExcludeNulls
	}
	return &ReportBuilder{
		day:    civilDay(asOf),
		policy: policy,
		index:  make(map[string]int),
	}
}

// Add folds one fact into the report.
func (b *ReportBuilder) Add(f InvoiceFact) {
	creditorType := f.CreditorType
	if creditorType == "" {
		creditorType = DefaultCreditorType
	}
	vendorName := f.VendorName
	if vendorName == "" {
		vendorName = DefaultVendorName
	}

	group := b.group(creditorType)
	vendor := group.vendor(vendorName)

	days, bucketed := b.policy.ageDays(f, b.day)
	key := BucketFor(days)

	vendor.DPP = vendor.DPP.Add(f.DPP)
	vendor.PPN = vendor.PPN.Add(f.PPN)
	vendor.Total = vendor.DPP.Add(vendor.PPN)
	if bucketed {
		vendor.Aging.Bucket(key).add(f.DPP, f.PPN)
	}
	group.subtotal.add(key, bucketed, f.DPP, f.PPN)
	b.grand.add(key, bucketed, f.DPP, f.PPN)
}

// Build returns a snapshot of the report. The builder may keep accepting facts.
func (b *ReportBuilder) Build() Report {
	report := Report{
		AsOf:       b.day.Format(time.DateOnly),
		Basis:      b.policy,
		Groups:     make([]CreditorGroup, 0, len(b.groups)),
		GrandTotal: b.grand,
	}
	for _, g := range b.groups {
		vendors := make([]VendorAggregate, 0, len(g.vendors))
		for _, v := range g.vendors {
			vendors = append(vendors, *v)
		}
		report.Groups = append(report.Groups, CreditorGroup{
			CreditorType: g.creditorType,
			Vendors:      vendors,
			Subtotal:     g.subtotal,
		})
	}
	return report
}

func (b *ReportBuilder) group(creditorType string) *groupState {
	if i, ok := b.index[creditorType]; ok {
		return b.groups[i]
	}
	g := &groupState{creditorType: creditorType, index: make(map[string]int)}
	b.index[creditorType] = len(b.groups)
	b.groups = append(b.groups, g)
	return g
}

func (g *groupState) vendor(name string) *VendorAggregate {
	if i, ok := g.index[name]; ok {
		return g.vendors[i]
	}
	v := &VendorAggregate{VendorName: name}
	g.index[name] = len(g.vendors)
	g.vendors = append(g.vendors, v)
	return v
}

func (s *Summary) add(key BucketKey, bucketed bool, dpp, ppn decimal.Decimal) {
	s.DPP = s.DPP.Add(dpp)
	s.PPN = s.PPN.Add(ppn)
	s.Total = s.DPP.Add(s.PPN)
	if bucketed {
		s.Aging.Bucket(key).add(dpp, ppn)
	}
}
