package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadCSV reads a table whose first record is the header. Cells stay as
// strings and are parsed later according to the dataset schema.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv has no header")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	t := NewTable(trimAll(header)...)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		t.Rows = append(t.Rows, padRow(record, len(t.Columns)))
	}
	return t, nil
}

// ReadCSVFile opens path and reads it with ReadCSV
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadWorkbook reads one sheet of an Excel workbook. An empty sheet name
// selects the first sheet.
func ReadWorkbook(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readSheet(f, sheet)
}

// ReadWorkbookFrom is ReadWorkbook over an already open stream
func ReadWorkbookFrom(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readSheet(f, sheet)
}

func readSheet(f *excelize.File, sheet string) (*Table, error) {
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q has no header", sheet)
	}

	t := NewTable(trimAll(rows[0])...)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		t.Rows = append(t.Rows, padRow(row, len(t.Columns)))
	}
	return t, nil
}

// padRow converts string cells to table cells; blank cells become nil and
// short rows are padded
func padRow(record []string, width int) []any {
	n := width
	if len(record) > n {
		n = len(record)
	}
	row := make([]any, n)
	for i, v := range record {
		if strings.TrimSpace(v) != "" {
			row[i] = strings.TrimSpace(v)
		}
	}
	return row
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
