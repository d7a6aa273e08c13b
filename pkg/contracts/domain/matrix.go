package domain

import (
	"time"
)

// Column is a dense (trading day × asset) grid of values stored row-major:
// Cells[i*len(Assets)+j] holds the value for Days[i] and Assets[j].
type Column struct {
	Name   string      `json:"name"`
	Kind   Kind        `json:"kind"`
	Days   []time.Time `json:"days"`
	Assets []AssetID   `json:"assets"`
	Cells  []Value     `json:"cells"`
}

// NewColumn allocates an all-null column over the given domain
func NewColumn(name string, kind Kind, days []time.Time, assets []AssetID) *Column {
	return &Column{
		Name:   name,
		Kind:   kind,
		Days:   days,
		Assets: assets,
		Cells:  make([]Value, len(days)*len(assets)),
	}
}

// At returns the value at day index i and asset index j
func (c *Column) At(i, j int) Value {
	return c.Cells[i*len(c.Assets)+j]
}

// Set stores the value at day index i and asset index j
func (c *Column) Set(i, j int, v Value) {
	c.Cells[i*len(c.Assets)+j] = v
}

// Row returns the values for day index i across all assets
func (c *Column) Row(i int) []Value {
	n := len(c.Assets)
	return c.Cells[i*n : (i+1)*n]
}

// Series returns the values of asset index j across all days
func (c *Column) Series(j int) []Value {
	out := make([]Value, len(c.Days))
	for i := range c.Days {
		out[i] = c.At(i, j)
	}
	return out
}

// Float64s returns the column as a 2-D float array; nulls become NaN
func (c *Column) Float64s() [][]float64 {
	out := make([][]float64, len(c.Days))
	for i := range c.Days {
		row := make([]float64, len(c.Assets))
		for j, v := range c.Row(i) {
			row[j] = v.Float64()
		}
		out[i] = row
	}
	return out
}

// Dates returns the column as a 2-D date array; nulls are the zero time
func (c *Column) Dates() [][]time.Time {
	out := make([][]time.Time, len(c.Days))
	for i := range c.Days {
		row := make([]time.Time, len(c.Assets))
		for j, v := range c.Row(i) {
			if v.Kind == KindDate {
				row[j] = v.Date
			}
		}
		out[i] = row
	}
	return out
}

// NullCount returns the number of null cells
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Cells {
		if v.IsNull() {
			n++
		}
	}
	return n
}

// OutputMatrix is the result of one load: named columns over a shared
// (trading day × asset) domain.
type OutputMatrix struct {
	Days    []time.Time        `json:"days"`
	Assets  []AssetID          `json:"assets"`
	Columns map[string]*Column `json:"columns"`
}

// NewOutputMatrix creates an empty matrix over the given domain
func NewOutputMatrix(days []time.Time, assets []AssetID) *OutputMatrix {
	return &OutputMatrix{
		Days:    days,
		Assets:  assets,
		Columns: make(map[string]*Column),
	}
}

// Column returns the named column or nil
func (m *OutputMatrix) Column(name string) *Column {
	if m == nil {
		return nil
	}
	return m.Columns[name]
}

// AssetIndex returns the position of the asset in the matrix
func (m *OutputMatrix) AssetIndex(asset AssetID) (int, bool) {
	for j, a := range m.Assets {
		if a == asset {
			return j, true
		}
	}
	return -1, false
}

// DayIndex returns the position of the day in the matrix
func (m *OutputMatrix) DayIndex(day time.Time) (int, bool) {
	day = TruncateDay(day)
	for i, d := range m.Days {
		if d.Equal(day) {
			return i, true
		}
	}
	return -1, false
}
