package aging

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Policy selects which date a fact is aged from and how missing dates behave.
type Policy string

const (
	// PolicyReceivedDateExcludeNulls ages by received date. Facts without one
	// still count toward running totals but land in no bucket.
	PolicyReceivedDateExcludeNulls Policy = "received"
	// PolicyInvoiceDateFallbackToToday ages by invoice date. A missing date
	// ages as zero days.
	PolicyInvoiceDateFallbackToToday Policy = "invoice"
)

// ErrUnknownPolicy is returned by ParsePolicy for unrecognised names.
var ErrUnknownPolicy = errors.New("aging: unknown policy")

// ParsePolicy maps a basis name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case PolicyReceivedDateExcludeNulls:
		return PolicyReceivedDateExcludeNulls, nil
	case PolicyInvoiceDateFallbackToToday:
		return PolicyInvoiceDateFallbackToToday, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// ageDays reports the age of fact on day. ok is false when the fact must be
// left out of every bucket.
func (p Policy) ageDays(fact InvoiceFact, day time.Time) (days int, ok bool) {
	var basis *time.Time
	switch p {
	case PolicyInvoiceDateFallbackToToday:
		basis = fact.InvoiceDate
		if basis == nil || basis.IsZero() {
			return 0, true
		}
	default:
		basis = fact.ReceivedDate
		if basis == nil || basis.IsZero() {
			return 0, false
		}
	}
	days = int(day.Sub(civilDay(*basis)).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, true
}

// civilDay truncates t to its calendar day in UTC.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
