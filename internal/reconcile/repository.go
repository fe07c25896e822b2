package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/aging"
)

// Repository reads invoice facts for aging.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const factsSelect = `SELECT f.vendor_code,
       COALESCE(c.name, ''),
       COALESCE(f.vendor_name, ''),
       COALESCE(f.supplier_name, ''),
       COALESCE(c.creditor_type, ''),
       f.invoice_date,
       f.received_date,
       COALESCE(f.dpp, 0)::text,
       COALESCE(f.ppn, 0)::text,
       COALESCE(f.total, 0)::text
FROM invoice_facts f
LEFT JOIN creditors c ON c.vendor_code = f.vendor_code`

// FindInvoiceFacts returns facts whose basis date is on or before maxDate,
// in insertion order.
func (r *Repository) FindInvoiceFacts(ctx context.Context, maxDate time.Time, policy aging.Policy) ([]aging.InvoiceFact, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("reconcile: repository not initialised")
	}
	rows, err := r.pool.Query(ctx, factsQuery(policy), pgtype.Date{Time: maxDate, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("reconcile: query facts: %w", err)
	}
	defer rows.Close()

	var facts []aging.InvoiceFact
	for rows.Next() {
		var (
			code, master, vendor, supplier, creditorType string
			invoiceDate, receivedDate                    pgtype.Date
			dpp, ppn, total                              string
		)
		if err := rows.Scan(&code, &master, &vendor, &supplier, &creditorType, &invoiceDate, &receivedDate, &dpp, &ppn, &total); err != nil {
			return nil, fmt.Errorf("reconcile: scan fact: %w", err)
		}
		fact := aging.InvoiceFact{
			VendorCode:   code,
			VendorName:   resolveVendorName(master, vendor, supplier, code),
			CreditorType: strings.TrimSpace(creditorType),
			InvoiceDate:  datePtr(invoiceDate),
			ReceivedDate: datePtr(receivedDate),
		}
		if fact.DPP, err = decimal.NewFromString(dpp); err != nil {
			return nil, fmt.Errorf("reconcile: parse dpp: %w", err)
		}
		if fact.PPN, err = decimal.NewFromString(ppn); err != nil {
			return nil, fmt.Errorf("reconcile: parse ppn: %w", err)
		}
		if fact.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("reconcile: parse total: %w", err)
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reconcile: iterate facts: %w", err)
	}
	return facts, nil
}

// factsQuery filters on the policy's basis date. The received policy drops
// facts with no received date; the invoice policy keeps undated facts.
func factsQuery(policy aging.Policy) string {
	var where string
	switch policy {
	case aging.PolicyInvoiceDateFallbackToToday:
		where = `WHERE f.invoice_date IS NULL OR f.invoice_date <= $1`
	default:
		where = `WHERE f.received_date IS NOT NULL AND f.received_date <= $1`
	}
	return factsSelect + "\n" + where + "\nORDER BY f.id"
}

// resolveVendorName picks the first non-blank spelling: creditor master name,
// invoice vendor name, supplier name, then vendor code.
func resolveVendorName(candidates ...string) string {
	for _, c := range candidates {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return ""
}

func datePtr(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}
