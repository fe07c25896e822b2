package ingest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/sheet"
)

// Feed names accepted by the upload endpoint.
const (
	FeedInvoices        = "invoices"
	FeedPurchaseDetails = "purchase_details"
)

// Feed binds a spreadsheet schema to its destination table.
type Feed struct {
	Name     string
	Table    string
	Schema   sheet.Schema
	Required []string
}

var feeds = map[string]Feed{
	FeedInvoices: {
		Name:  FeedInvoices,
		Table: "invoice_facts",
		Schema: sheet.NewSchema(
			sheet.Column{Key: "invoice_number", Type: sheet.TypeString, Aliases: []string{"no faktur", "nomor faktur", "no invoice", "invoice no"}},
			sheet.Column{Key: "vendor_code", Type: sheet.TypeString, Aliases: []string{"kode vendor", "kode supplier", "kode kreditur", "kode pbf"}},
			sheet.Column{Key: "vendor_name", Type: sheet.TypeString, Aliases: []string{"nama vendor", "vendor", "nama kreditur", "kreditur"}},
			sheet.Column{Key: "supplier_name", Type: sheet.TypeString, Aliases: []string{"nama supplier", "supplier", "pbf", "nama pbf"}},
			sheet.Column{Key: "invoice_date", Type: sheet.TypeDate, Aliases: []string{"tanggal faktur", "tgl faktur", "tanggal invoice"}},
			sheet.Column{Key: "received_date", Type: sheet.TypeDate, Aliases: []string{"tanggal penerimaan", "tgl penerimaan", "tanggal terima", "tgl terima"}},
			sheet.Column{Key: "due_date", Type: sheet.TypeDate, Aliases: []string{"jatuh tempo", "tanggal jatuh tempo", "tgl jatuh tempo"}},
			sheet.Column{Key: "dpp", Type: sheet.TypeDecimal, Aliases: []string{"nilai dpp"}},
			sheet.Column{Key: "ppn", Type: sheet.TypeDecimal, Aliases: []string{"nilai ppn"}},
			sheet.Column{Key: "total", Type: sheet.TypeDecimal, Aliases: []string{"jumlah", "grand total", "total faktur"}},
		),
		Required: []string{"invoice_number", "vendor_code"},
	},
	FeedPurchaseDetails: {
		Name:  FeedPurchaseDetails,
		Table: "purchase_line_items",
		Schema: sheet.NewSchema(
			sheet.Column{Key: "invoice_number", Type: sheet.TypeString, Aliases: []string{"no faktur", "nomor faktur"}},
			sheet.Column{Key: "vendor_code", Type: sheet.TypeString, Aliases: []string{"kode vendor", "kode supplier", "kode pbf"}},
			sheet.Column{Key: "outlet_code", Type: sheet.TypeString, Aliases: []string{"kode outlet", "outlet", "kode apotek"}},
			sheet.Column{Key: "item_code", Type: sheet.TypeString, Aliases: []string{"kode barang", "kode obat", "kode item"}},
			sheet.Column{Key: "item_name", Type: sheet.TypeString, Aliases: []string{"nama barang", "nama obat", "nama item"}},
			sheet.Column{Key: "quantity", Type: sheet.TypeInteger, Aliases: []string{"qty", "jumlah barang", "kuantitas"}},
			sheet.Column{Key: "unit_price", Type: sheet.TypeDecimal, Aliases: []string{"harga", "harga satuan"}},
			sheet.Column{Key: "discount", Type: sheet.TypeDecimal, Aliases: []string{"diskon", "disc"}},
			sheet.Column{Key: "dpp", Type: sheet.TypeDecimal},
			sheet.Column{Key: "ppn", Type: sheet.TypeDecimal},
			sheet.Column{Key: "total", Type: sheet.TypeDecimal, Aliases: []string{"jumlah", "subtotal"}},
			sheet.Column{Key: "received_date", Type: sheet.TypeDate, Aliases: []string{"tanggal penerimaan", "tgl terima", "tanggal terima"}},
		),
		Required: []string{"invoice_number", "item_code"},
	},
}

// FeedByName looks up a registered feed.
func FeedByName(name string) (Feed, error) {
	f, ok := feeds[name]
	if !ok {
		return Feed{}, fmt.Errorf("%w %q", ErrUnknownFeed, name)
	}
	return f, nil
}

// Columns lists destination columns in insert order.
func (f Feed) Columns() []string {
	cols := f.Schema.Columns()
	out := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		out = append(out, c.Key)
	}
	return append(out, "upload_job_id")
}

// Record converts a decoded row into insert values. A row missing a required
// key is rejected.
func (f Feed) Record(row sheet.RawRow, jobID uuid.UUID) ([]any, error) {
	for _, key := range f.Required {
		if row.String(key) == "" {
			return nil, fmt.Errorf("ingest: %s: missing %s", f.Name, key)
		}
	}
	cols := f.Schema.Columns()
	values := make([]any, 0, len(cols)+1)
	for _, c := range cols {
		values = append(values, pgValue(row, c))
	}
	if f.Name == FeedInvoices {
		fillInvoiceTotal(row, values, cols)
	}
	return append(values, pgtype.UUID{Bytes: jobID, Valid: true}), nil
}

func pgValue(row sheet.RawRow, c sheet.Column) any {
	switch c.Type {
	case sheet.TypeDate:
		if t := row.Time(c.Key); t != nil {
			return pgtype.Date{Time: *t, Valid: true}
		}
	case sheet.TypeInteger:
		if v, ok := row.Int(c.Key); ok {
			return v
		}
	case sheet.TypeDecimal:
		if d, ok := row.Decimal(c.Key); ok {
			return numeric(d)
		}
	default:
		if s := row.String(c.Key); s != "" {
			return s
		}
	}
	return nil
}

// fillInvoiceTotal stores zero for a missing dpp or ppn, and dpp + ppn when
// the sheet carries no total column.
func fillInvoiceTotal(row sheet.RawRow, values []any, cols []sheet.Column) {
	dpp, _ := row.Decimal("dpp")
	ppn, _ := row.Decimal("ppn")
	_, hasTotal := row.Decimal("total")
	for i, c := range cols {
		switch {
		case c.Key == "dpp" && values[i] == nil:
			values[i] = numeric(dpp)
		case c.Key == "ppn" && values[i] == nil:
			values[i] = numeric(ppn)
		case c.Key == "total" && !hasTotal:
			values[i] = numeric(dpp.Add(ppn))
		}
	}
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
