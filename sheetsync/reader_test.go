package sheetsync

import (
	"context"
	"strings"
	"testing"
)

// NOTE: These tests are intentionally DB-free and network-free. They validate
// the reader semantics: pagination stops on the first empty page, a malformed
// row never aborts the pass, and duplicate IDs keep the later occurrence.

type fakePages struct {
	pages [][][]interface{}
	reads int
}

func (f *fakePages) ReadPage(ctx context.Context, spreadsheetID string, sheetName string, first int64, count int64) ([][]interface{}, error) {
	f.reads++
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func row(cells ...string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

func TestReadSheetData_PaginatesUntilEmptyPage(t *testing.T) {
	src := &fakePages{pages: [][][]interface{}{
		{row("1", "100", "50.00", "01.01.2024")},
		{row("2", "101", "10.50", "15.02.2024")},
	}}

	records, rowErrors, err := ReadSheetData(context.Background(), src, "doc", "sheet", 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rowErrors) != 0 {
		t.Fatalf("expected no row errors, got %v", rowErrors)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// 2 data pages + 1 terminating empty page.
	if src.reads != 3 {
		t.Fatalf("expected 3 page reads, got %d", src.reads)
	}

	first := records[1]
	if first.OrderNumber != 100 {
		t.Fatalf("expected order number 100, got %d", first.OrderNumber)
	}
	if got := first.CostUsd.StringFixed(2); got != "50.00" {
		t.Fatalf("expected cost 50.00, got %s", got)
	}
	if got := first.DeliveryDate.Format("2006-01-02"); got != "2024-01-01" {
		t.Fatalf("expected delivery date 2024-01-01, got %s", got)
	}
}

func TestReadSheetData_MalformedRowIsSkippedNotFatal(t *testing.T) {
	src := &fakePages{pages: [][][]interface{}{
		{
			row("abc", "10", "20.00", "01.01.2024"),
			row("2", "11", "21.00", "02.01.2024"),
		},
	}}

	records, rowErrors, err := ReadSheetData(context.Background(), src, "doc", "sheet", 2, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rowErrors) != 1 {
		t.Fatalf("expected 1 row error, got %d", len(rowErrors))
	}
	if !strings.Contains(rowErrors[0].Details, "id column") {
		t.Fatalf("expected id column error, got %q", rowErrors[0].Details)
	}
	if len(records) != 1 {
		t.Fatalf("expected the valid row to survive, got %d records", len(records))
	}
	if _, ok := records[2]; !ok {
		t.Fatal("expected record with ID 2")
	}
}

func TestReadSheetData_DuplicateIDLastWriteWins(t *testing.T) {
	src := &fakePages{pages: [][][]interface{}{
		{
			row("7", "100", "50.00", "01.01.2024"),
			row("7", "200", "60.00", "02.01.2024"),
		},
	}}

	records, rowErrors, err := ReadSheetData(context.Background(), src, "doc", "sheet", 2, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rowErrors) != 1 {
		t.Fatalf("expected 1 duplicate error, got %d", len(rowErrors))
	}
	if !strings.Contains(rowErrors[0].Description, "occurs more than once") {
		t.Fatalf("unexpected error description %q", rowErrors[0].Description)
	}
	if records[7].OrderNumber != 200 {
		t.Fatalf("expected later occurrence to win, got order number %d", records[7].OrderNumber)
	}
}

func TestParseRow_RejectsShortAndMalformedRows(t *testing.T) {
	cases := []struct {
		name string
		row  []interface{}
	}{
		{"short row", row("1", "100", "50.00")},
		{"bad order number", row("1", "-5", "50.00", "01.01.2024")},
		{"bad cost", row("1", "100", "fifty", "01.01.2024")},
		{"bad date", row("1", "100", "50.00", "2024-01-01")},
	}
	for _, tc := range cases {
		if _, _, err := parseRow(tc.row); err == nil {
			t.Fatalf("%s: expected parse error", tc.name)
		}
	}
}
