package domain

import (
	"fmt"
	"math"
	"time"
)

// AssetID is the opaque integer identifier of a security (a "sid")
type AssetID int64

// DateLayout is the canonical layout for date-only values
const DateLayout = "2006-01-02"

// Kind identifies the type carried by a Value
type Kind int

const (
	// KindNull marks a missing value; it is the zero Kind
	KindNull Kind = iota
	// KindFloat is a numeric value such as a cash amount or share count
	KindFloat
	// KindDate is a date-only value
	KindDate
	// KindInt is an integer value such as a business day count
	KindInt
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	case KindInt:
		return "int"
	default:
		return "unknown"
	}
}

// Value is a nullable, tagged cell value. The zero Value is null.
type Value struct {
	Kind  Kind      `json:"kind"`
	Float float64   `json:"float,omitempty"`
	Date  time.Time `json:"date,omitempty"`
	Int   int64     `json:"int,omitempty"`
}

// Null returns the null value
func Null() Value { return Value{} }

// FloatValue wraps a float64
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// DateValue wraps a date, dropping any time-of-day component
func DateValue(t time.Time) Value {
	if t.IsZero() {
		return Value{}
	}
	return Value{Kind: KindDate, Date: TruncateDay(t)}
}

// IntValue wraps an int64
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// IsNull reports whether the value is missing
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Float64 returns the numeric value, or NaN when null or not numeric
func (v Value) Float64() float64 {
	switch v.Kind {
	case KindFloat:
		return v.Float
	case KindInt:
		return float64(v.Int)
	default:
		return math.NaN()
	}
}

// String formats the value for export; null is the empty string
func (v Value) String() string {
	switch v.Kind {
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindDate:
		return v.Date.Format(DateLayout)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	default:
		return ""
	}
}

// Equal compares two values by kind and payload
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindFloat:
		return v.Float == o.Float
	case KindDate:
		return v.Date.Equal(o.Date)
	case KindInt:
		return v.Int == o.Int
	default:
		return true
	}
}

// EventRecord is a single corporate event for one asset as seen by the loader.
// KnowledgeDate is the first day the record may be used; ReferenceDate anchors
// days-since calculations and is null when zero.
type EventRecord struct {
	Asset         AssetID          `json:"asset"`
	KnowledgeDate time.Time        `json:"knowledge_date"`
	ReferenceDate time.Time        `json:"reference_date,omitempty"`
	Values        map[string]Value `json:"values"`

	// Seq is the position in which the record was supplied
	Seq int `json:"-"`
}

// Field returns the named value of the record. The reference column is
// addressable by name through refColumn.
func (r EventRecord) Field(name, refColumn string) Value {
	if name == refColumn {
		return DateValue(r.ReferenceDate)
	}
	return r.Values[name]
}

// IsDegenerate reports whether every value field is null
func (r EventRecord) IsDegenerate() bool {
	for _, v := range r.Values {
		if !v.IsNull() {
			return false
		}
	}
	return true
}

// TruncateDay strips the time-of-day and normalizes to UTC midnight
func TruncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
