package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"pitloader/pkg/contracts/domain"
)

// MatrixExporter writes loader output as CSV
type MatrixExporter struct {
	writer *CSVWriter
	logger *slog.Logger
}

// NewMatrixExporter creates an exporter writing under baseDir
func NewMatrixExporter(baseDir string, logger *slog.Logger) *MatrixExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatrixExporter{
		writer: NewCSVWriter(baseDir, logger),
		logger: logger,
	}
}

// ColumnOrder returns the names of m's columns, in the order of preferred
// when given and alphabetically otherwise
func ColumnOrder(m *domain.OutputMatrix, preferred []string) ([]string, error) {
	if len(preferred) == 0 {
		names := make([]string, 0, len(m.Columns))
		for name := range m.Columns {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}
	for _, name := range preferred {
		if m.Column(name) == nil {
			return nil, fmt.Errorf("matrix has no column %q", name)
		}
	}
	return preferred, nil
}

// WriteLong writes one row per (day, asset) with a column per output:
// date,sid,<columns...>
func WriteLong(out io.Writer, m *domain.OutputMatrix, columns []string) error {
	order, err := ColumnOrder(m, columns)
	if err != nil {
		return err
	}

	s, err := NewStreamWriter(out, append([]string{"date", "sid"}, order...))
	if err != nil {
		return err
	}
	if err := writeLongRows(s, m, order); err != nil {
		return err
	}
	return s.Close()
}

// ExportLong writes the long format to a file
func (e *MatrixExporter) ExportLong(filePath string, m *domain.OutputMatrix, columns []string) error {
	order, err := ColumnOrder(m, columns)
	if err != nil {
		return err
	}

	s, err := e.writer.CreateStreamWriter(filePath, append([]string{"date", "sid"}, order...), false)
	if err != nil {
		return err
	}
	if err := writeLongRows(s, m, order); err != nil {
		_ = s.Close()
		return err
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filePath, err)
	}

	e.logger.Info("Exported matrix",
		slog.String("file", filePath),
		slog.Int("days", len(m.Days)),
		slog.Int("assets", len(m.Assets)),
		slog.Int("columns", len(order)))
	return nil
}

func writeLongRows(s *StreamWriter, m *domain.OutputMatrix, order []string) error {
	cols := make([]*domain.Column, len(order))
	for k, name := range order {
		cols[k] = m.Column(name)
	}

	record := make([]string, 2+len(order))
	for i, d := range m.Days {
		record[0] = d.Format(domain.DateLayout)
		for j, a := range m.Assets {
			record[1] = formatAsset(a)
			for k, c := range cols {
				record[2+k] = formatValue(c.At(i, j))
			}
			if err := s.WriteRecord(record); err != nil {
				return fmt.Errorf("failed to write row for %s: %w", record[0], err)
			}
		}
	}
	return nil
}

// ExportWide writes one file per column named <prefix><column>.csv. Each
// file has a row per day and a column per asset.
func (e *MatrixExporter) ExportWide(prefix string, m *domain.OutputMatrix) ([]string, error) {
	order, _ := ColumnOrder(m, nil)

	header := make([]string, 0, len(m.Assets)+1)
	header = append(header, "date")
	for _, a := range m.Assets {
		header = append(header, formatAsset(a))
	}

	files := make([]string, 0, len(order))
	for _, name := range order {
		c := m.Column(name)
		records := make([][]string, len(m.Days))
		for i, d := range m.Days {
			row := make([]string, 0, len(m.Assets)+1)
			row = append(row, d.Format(domain.DateLayout))
			for _, v := range c.Row(i) {
				row = append(row, formatValue(v))
			}
			records[i] = row
		}

		path := prefix + name + ".csv"
		if err := e.writer.WriteCSV(path, WriteOptions{Headers: header, Records: records, BOMPrefix: true}); err != nil {
			return files, err
		}
		files = append(files, path)
	}
	return files, nil
}
