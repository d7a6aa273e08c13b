package source

import (
	"context"
	"fmt"
	"sort"

	"pitloader/pkg/contracts/domain"
)

// Table is a row-oriented set of raw values. Cells may hold numbers,
// time.Time, strings (parsed according to the declared field kind) or nil.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NewTable creates an empty table with the given header
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Append adds a row; it must have one cell per column
func (t *Table) Append(cells ...any) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(cells), len(t.Columns))
	}
	t.Rows = append(t.Rows, cells)
	return nil
}

// MustAppend is Append for fixtures; it panics on a malformed row
func (t *Table) MustAppend(cells ...any) *Table {
	if err := t.Append(cells...); err != nil {
		panic(err)
	}
	return t
}

// Project returns a copy of the table restricted to the given columns.
// Missing columns are skipped; the caller's schema check reports them.
func (t *Table) Project(columns []string) *Table {
	pos := t.positions()
	var keep []int
	out := &Table{}
	for _, c := range columns {
		if i, ok := pos[c]; ok {
			keep = append(keep, i)
			out.Columns = append(out.Columns, c)
		}
	}
	out.Rows = make([][]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		projected := make([]any, len(keep))
		for k, i := range keep {
			if i < len(row) {
				projected[k] = row[i]
			}
		}
		out.Rows = append(out.Rows, projected)
	}
	return out
}

// Assets returns the distinct identifiers in column, ascending. Rows with
// a null asset are skipped.
func (t *Table) Assets(column string) ([]domain.AssetID, error) {
	i, ok := t.positions()[column]
	if !ok {
		return nil, fmt.Errorf("table has no column %q", column)
	}
	seen := make(map[domain.AssetID]struct{})
	out := []domain.AssetID{}
	for n, row := range t.Rows {
		if i >= len(row) || row[i] == nil {
			continue
		}
		a, err := toAsset(row[i])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n, err)
		}
		if _, dup := seen[a]; !dup {
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	sort.Slice(out, func(x, y int) bool { return out[x] < out[y] })
	return out, nil
}

func (t *Table) positions() map[string]int {
	pos := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := pos[c]; !dup {
			pos[c] = i
		}
	}
	return pos
}

// TableSource is an eager source over one table holding every asset,
// filtered by the schema's asset column.
type TableSource struct {
	Table *Table
}

// NewTableSource wraps an in-memory table
func NewTableSource(t *Table) *TableSource {
	return &TableSource{Table: t}
}

// Resolve implements Source
func (s *TableSource) Resolve(ctx context.Context, req Request) (*Batch, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := newNormalizer(req)
	t := s.Table
	if t == nil {
		t = NewTable(req.Schema.Columns()...)
	}
	if err := n.add(t, nil); err != nil {
		return nil, err
	}
	return n.batch, nil
}

// FramesSource is an eager source keyed by asset: each frame holds the
// events of one asset and needs no asset column.
type FramesSource struct {
	Frames map[domain.AssetID]*Table
}

// NewFramesSource wraps per-asset tables
func NewFramesSource(frames map[domain.AssetID]*Table) *FramesSource {
	return &FramesSource{Frames: frames}
}

// Resolve implements Source
func (s *FramesSource) Resolve(ctx context.Context, req Request) (*Batch, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}

	n := newNormalizer(req)
	seen := make(map[domain.AssetID]bool, len(req.Assets))
	for _, asset := range req.Assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, ok := s.Frames[asset]
		if !ok || frame == nil || seen[asset] {
			continue
		}
		seen[asset] = true
		a := asset
		if err := n.add(frame, &a); err != nil {
			return nil, err
		}
	}
	return n.batch, nil
}
