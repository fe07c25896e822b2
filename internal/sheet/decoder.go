package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrEmptyDataset is returned when a file has no data rows below the header.
	ErrEmptyDataset = errors.New("sheet: no data rows")
	// ErrUnreadableFile is returned when the content cannot be parsed as a workbook or CSV.
	ErrUnreadableFile = errors.New("sheet: unreadable file")
)

// Format is the detected container format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	utf8BOM  = []byte("\xef\xbb\xbf")
)

// DetectFormat sniffs the leading bytes of data.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX
	case bytes.HasPrefix(data, oleMagic):
		return FormatXLS
	default:
		return FormatCSV
	}
}

// RawRow maps canonical keys to coerced values: time.Time, int64,
// decimal.Decimal, string or nil.
type RawRow map[string]any

// String returns the string value at key or "".
func (r RawRow) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Time returns the date at key or nil.
func (r RawRow) Time(key string) *time.Time {
	if t, ok := r[key].(time.Time); ok {
		return &t
	}
	return nil
}

// Decimal returns the decimal at key; ok is false when the cell was empty.
func (r RawRow) Decimal(key string) (decimal.Decimal, bool) {
	switch v := r[key].(type) {
	case decimal.Decimal:
		return v, true
	case int64:
		return decimal.NewFromInt(v), true
	}
	return decimal.Decimal{}, false
}

// Int returns the integer at key; ok is false when the cell was empty.
func (r RawRow) Int(key string) (int64, bool) {
	v, ok := r[key].(int64)
	return v, ok
}

// Rows is a single pass iterator over decoded data rows.
type Rows struct {
	format  Format
	columns []Column
	records [][]string
	pos     int
}

// Format reports the container format the rows came from.
func (r *Rows) Format() Format { return r.format }

// Len is the number of data rows, excluding the header and blank rows.
func (r *Rows) Len() int { return len(r.records) }

// Next returns the following row, or false once every row was consumed.
func (r *Rows) Next() (RawRow, bool) {
	if r.pos >= len(r.records) {
		return nil, false
	}
	record := r.records[r.pos]
	r.pos++

	row := make(RawRow, len(r.columns))
	for i, col := range r.columns {
		var cell string
		if i < len(record) {
			cell = record[i]
		}
		value := coerce(cell, col.Type)
		if existing, seen := row[col.Key]; seen && existing != nil && value == nil {
			continue
		}
		row[col.Key] = value
	}
	return row, true
}

// DecodeReader reads r fully and decodes it.
func DecodeReader(r io.Reader, schema Schema) (*Rows, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	return Decode(data, schema)
}

// Decode parses the first sheet of data. The first non-blank row is the header.
func Decode(data []byte, schema Schema) (rows *Rows, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("%w: %v", ErrUnreadableFile, r)
		}
	}()

	format := DetectFormat(data)
	var records [][]string
	switch format {
	case FormatXLSX:
		records, err = readXLSX(data)
	case FormatXLS:
		records, err = readXLS(data)
	default:
		records, err = readCSV(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableFile, format, err)
	}

	records = dropBlank(records)
	if len(records) < 2 {
		return nil, ErrEmptyDataset
	}

	header := records[0]
	columns := make([]Column, len(header))
	for i, h := range header {
		columns[i], _ = schema.Resolve(h)
		if columns[i].Key == "" {
			columns[i].Key = fmt.Sprintf("column_%d", i+1)
		}
	}
	return &Rows{format: format, columns: columns, records: records[1:]}, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	// Raw values keep date cells as day serials instead of display strings.
	return f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
}

func readXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	ws := wb.GetSheet(0)
	if ws == nil {
		return nil, errors.New("workbook has no sheets")
	}
	records := make([][]string, 0, int(ws.MaxRow)+1)
	for i := 0; i <= int(ws.MaxRow); i++ {
		row := ws.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		records = append(records, cells)
	}
	return records, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

// sniffDelimiter prefers ';' when the header line uses it more than ','.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func dropBlank(records [][]string) [][]string {
	out := records[:0]
	for _, rec := range records {
		for _, cell := range rec {
			if strings.TrimSpace(cell) != "" {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}
