package sheet

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Serial 25569 is 1970-01-01. Serials below 61 fall before 1900-03-01 where
// the spreadsheet calendar counts a non-existent 1900-02-29. 2958465 is
// 9999-12-31, the last day a spreadsheet can hold.
const (
	unixEpochSerial = 25569
	minSerial       = 61
	maxSerial       = 2958465
	secondsPerDay   = 86400
)

var (
	dayFirstPattern = regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{4})$`)
	compactPattern  = regexp.MustCompile(`^\d{8}$`)
	groupedPattern  = regexp.MustCompile(`^-?[1-9]\d{0,2}[.,]\d{3}$`)

	dateLayouts = []string{
		time.DateOnly,
		time.RFC3339,
		time.DateTime,
		"2006-01-02T15:04:05",
		"2006/01/02",
		"2006.01.02",
		"02 Jan 2006",
		"2 January 2006",
		"Jan 2, 2006",
	}
)

// SerialToTime converts a spreadsheet day serial to a UTC instant.
func SerialToTime(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial < minSerial || serial >= maxSerial+1 {
		return time.Time{}, false
	}
	secs := math.Round((serial - unixEpochSerial) * secondsPerDay)
	return time.Unix(int64(secs), 0).UTC(), true
}

// ParseDate accepts a compact yyyymmdd date, a numeric serial, a day-first
// date or any known layout. Layout matches keep the calendar day as written,
// at midnight UTC, whatever offset the input carried.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if compactPattern.MatchString(s) {
		t, err := time.Parse("20060102", s)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return SerialToTime(serial)
	}
	if m := dayFirstPattern.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Day() != day || int(t.Month()) != month {
			return time.Time{}, false
		}
		return t, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// ParseInteger accepts plain integers and integral floats such as "12.0".
func ParseInteger(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	d, ok := ParseDecimal(s)
	if !ok || !d.Equal(d.Truncate(0)) {
		return 0, false
	}
	return d.IntPart(), true
}

// ParseDecimal parses money values, tolerating currency prefixes and
// Indonesian grouping ("Rp 1.234.567,50"). A lone separator followed by
// exactly three digits after a one to three digit lead ("1.500", "1,500")
// is grouping; any other lone separator is the decimal point.
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	s := normalizeNumber(raw)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func normalizeNumber(raw string) string {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "rp") {
		s = strings.TrimSpace(s[2:])
		s = strings.TrimPrefix(s, ".")
	}
	s = strings.ReplaceAll(s, " ", "")
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if negative {
		s = "-" + s[1:len(s)-1]
	}

	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		s = normalizeSingleSeparator(s, ",")
	case dot >= 0:
		s = normalizeSingleSeparator(s, ".")
	}
	return s
}

func normalizeSingleSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 || groupedPattern.MatchString(s) {
		return strings.ReplaceAll(s, sep, "")
	}
	return strings.Replace(s, sep, ".", 1)
}

func coerce(raw string, typ ColumnType) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	switch typ {
	case TypeDate:
		if t, ok := ParseDate(s); ok {
			return t
		}
		return nil
	case TypeInteger:
		if v, ok := ParseInteger(s); ok {
			return v
		}
		return nil
	case TypeDecimal:
		if d, ok := ParseDecimal(s); ok {
			return d
		}
		return nil
	default:
		return s
	}
}
