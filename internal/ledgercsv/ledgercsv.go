// Package ledgercsv reads and writes the ledger and archive tables.
//
// A ledger table has one row per entry in entry order under a header row.
// The archive table is the same table with a trailing closure timestamp that
// is identical for every row of one closed day.
package ledgercsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"lg/nutrition-ledger-go-api/internal/nutrition"
)

// LedgerHeader is the column layout of a ledger table.
var LedgerHeader = []string{
	"Timestamp",
	"Food",
	"Quantity (g)",
	"Calories",
	"Fat (g)",
	"Protein (g)",
	"Carbohydrate (g)",
}

// ArchiveHeader is LedgerHeader plus the closure timestamp.
var ArchiveHeader = append(append([]string(nil), LedgerHeader...), "Closed At")

// ErrMalformed wraps every decoding failure.
var ErrMalformed = errors.New("malformed ledger table")

const timeLayout = time.RFC3339Nano

// EncodeLedger writes entries as a ledger table.
func EncodeLedger(w io.Writer, entries []nutrition.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LedgerHeader); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	for i, e := range entries {
		if err := cw.Write(entryRow(e)); err != nil {
			return fmt.Errorf("write ledger row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeArchive writes records, in order, as one archive table.
func EncodeArchive(w io.Writer, records []nutrition.ArchiveRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ArchiveHeader); err != nil {
		return fmt.Errorf("write archive header: %w", err)
	}
	for _, r := range records {
		closedAt := r.ClosedAt.UTC().Format(timeLayout)
		for i, e := range r.Entries {
			if err := cw.Write(append(entryRow(e), closedAt)); err != nil {
				return fmt.Errorf("write archive row %d of %s: %w", i+1, closedAt, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeLedger parses a ledger table. Entries get fresh IDs because the table
// does not carry them.
func DecodeLedger(r io.Reader) ([]nutrition.Entry, error) {
	rows, err := readTable(r, LedgerHeader)
	if err != nil {
		return nil, err
	}
	entries := make([]nutrition.Entry, 0, len(rows))
	for i, row := range rows {
		e, err := parseEntry(row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DecodeArchive parses an archive table for userID. Consecutive rows sharing
// a closure timestamp form one record.
func DecodeArchive(r io.Reader, userID string) ([]nutrition.ArchiveRecord, error) {
	rows, err := readTable(r, ArchiveHeader)
	if err != nil {
		return nil, err
	}
	var records []nutrition.ArchiveRecord
	for i, row := range rows {
		e, err := parseEntry(row[:len(LedgerHeader)])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, i+2, err)
		}
		closedAt, err := time.Parse(timeLayout, row[len(LedgerHeader)])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: closed at: %v", ErrMalformed, i+2, err)
		}
		n := len(records)
		if n == 0 || !records[n-1].ClosedAt.Equal(closedAt) {
			records = append(records, nutrition.ArchiveRecord{UserID: userID, ClosedAt: closedAt})
			n++
		}
		records[n-1].Entries = append(records[n-1].Entries, e)
	}
	return records, nil
}

func entryRow(e nutrition.Entry) []string {
	return []string{
		e.Timestamp.UTC().Format(timeLayout),
		e.FoodName,
		formatFloat(e.QuantityG),
		formatFloat(e.Nutrients.Calories),
		formatFloat(e.Nutrients.FatG),
		formatFloat(e.Nutrients.ProteinG),
		formatFloat(e.Nutrients.CarbohydrateG),
	}
}

// formatFloat uses the shortest representation that parses back to the same
// float64, so a table round-trip is lossless.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func readTable(r io.Reader, header []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrMalformed)
	}
	for i, col := range header {
		if rows[0][i] != col {
			return nil, fmt.Errorf("%w: column %d is %q, expected %q", ErrMalformed, i+1, rows[0][i], col)
		}
	}
	return rows[1:], nil
}

func parseEntry(row []string) (nutrition.Entry, error) {
	ts, err := time.Parse(timeLayout, row[0])
	if err != nil {
		return nutrition.Entry{}, fmt.Errorf("timestamp: %v", err)
	}
	nums := make([]float64, 5)
	for i := range nums {
		v, err := strconv.ParseFloat(row[i+2], 64)
		if err != nil {
			return nutrition.Entry{}, fmt.Errorf("%s: %v", LedgerHeader[i+2], err)
		}
		nums[i] = v
	}
	if err := nutrition.ValidateQuantity(nums[0]); err != nil {
		return nutrition.Entry{}, err
	}
	consumed := nutrition.Vector{Calories: nums[1], FatG: nums[2], ProteinG: nums[3], CarbohydrateG: nums[4]}
	if err := consumed.Validate(); err != nil {
		return nutrition.Entry{}, err
	}
	if row[1] == "" {
		return nutrition.Entry{}, nutrition.ErrEmptyFoodName
	}
	return nutrition.Entry{
		ID:        uuid.New(),
		Timestamp: ts,
		FoodName:  row[1],
		QuantityG: nums[0],
		Nutrients: consumed,
	}, nil
}
