package ingest

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/sheet"
)

func TestFeedRecordTypes(t *testing.T) {
	feed := mustFeed(t, FeedInvoices)
	received := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	jobID := uuid.New()

	rec, err := feed.Record(sheet.RawRow{
		"invoice_number": "F-1",
		"vendor_code":    "PBF-01",
		"received_date":  received,
		"dpp":            decimal.RequireFromString("100000.50"),
		"ppn":            decimal.NewFromInt(11000),
	}, jobID)
	require.NoError(t, err)

	cols := feed.Columns()
	require.Len(t, rec, len(cols))
	assert.Equal(t, "upload_job_id", cols[len(cols)-1])

	byCol := make(map[string]any, len(cols))
	for i, c := range cols {
		byCol[c] = rec[i]
	}
	assert.Equal(t, "F-1", byCol["invoice_number"])
	assert.Nil(t, byCol["vendor_name"])
	assert.Nil(t, byCol["invoice_date"])
	assert.Equal(t, pgtype.Date{Time: received, Valid: true}, byCol["received_date"])

	dpp, ok := byCol["dpp"].(pgtype.Numeric)
	require.True(t, ok)
	assert.Equal(t, "10000050", dpp.Int.String())
	assert.Equal(t, int32(-2), dpp.Exp)

	total, ok := byCol["total"].(pgtype.Numeric)
	require.True(t, ok, "missing total is derived from dpp + ppn")
	assert.Equal(t, "11100050", total.Int.String())
	assert.Equal(t, int32(-2), total.Exp)

	assert.Equal(t, pgtype.UUID{Bytes: jobID, Valid: true}, byCol["upload_job_id"])
}

func TestFeedRecordZeroFillsInvoiceAmounts(t *testing.T) {
	feed := mustFeed(t, FeedInvoices)
	rec, err := feed.Record(sheet.RawRow{
		"invoice_number": "F-2",
		"vendor_code":    "PBF-02",
		"dpp":            decimal.NewFromInt(500),
	}, uuid.New())
	require.NoError(t, err)

	byCol := make(map[string]any)
	for i, c := range feed.Columns() {
		byCol[c] = rec[i]
	}
	ppn, ok := byCol["ppn"].(pgtype.Numeric)
	require.True(t, ok, "missing ppn stored as zero")
	assert.Equal(t, "0", ppn.Int.String())
	total, ok := byCol["total"].(pgtype.Numeric)
	require.True(t, ok)
	assert.Equal(t, "500", total.Int.String())
}

func TestFeedColumnsExistInMigrations(t *testing.T) {
	entries, err := os.ReadDir("../platform/db/migrations")
	require.NoError(t, err)
	var ddl strings.Builder
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join("../platform/db/migrations", e.Name()))
		require.NoError(t, err)
		ddl.Write(data)
	}

	for _, name := range []string{FeedInvoices, FeedPurchaseDetails} {
		feed := mustFeed(t, name)
		table := createTableBody(t, ddl.String(), feed.Table)
		for _, col := range feed.Columns() {
			pattern := regexp.MustCompile(`(?m)^\s+` + regexp.QuoteMeta(col) + `\s`)
			assert.Truef(t, pattern.MatchString(table), "%s.%s missing from migrations", feed.Table, col)
		}
	}
}

func createTableBody(t *testing.T, ddl, table string) string {
	t.Helper()
	start := strings.Index(ddl, "CREATE TABLE IF NOT EXISTS "+table+" (")
	require.GreaterOrEqualf(t, start, 0, "no CREATE TABLE for %s", table)
	body := ddl[start:]
	end := strings.Index(body, "\n);")
	require.Greater(t, end, 0)
	return body[:end]
}

func TestFeedRecordRequiresKeys(t *testing.T) {
	_, err := mustFeed(t, FeedPurchaseDetails).Record(sheet.RawRow{"invoice_number": "F-1"}, uuid.New())
	assert.Error(t, err)
}

func TestFeedByNameUnknown(t *testing.T) {
	_, err := FeedByName("ledger")
	assert.ErrorIs(t, err, ErrUnknownFeed)
}
