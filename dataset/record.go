// Package dataset loads tabular CSV data and turns parsed rows into numeric
// matrices ready for preprocessing and training.
package dataset

import (
	"strconv"
)

// Kind is the dynamic type of a parsed cell.
type Kind int

const (
	KindEmpty Kind = iota
	KindNumber
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is one typed CSV cell.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

// NumberValue returns a KindNumber value.
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// StringValue returns a KindString value. The empty string becomes KindEmpty.
func StringValue(s string) Value {
	if s == "" {
		return Value{kind: KindEmpty}
	}
	return Value{kind: KindString, str: s}
}

// BoolValue returns a KindBool value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// EmptyValue returns a KindEmpty value.
func EmptyValue() Value { return Value{kind: KindEmpty} }

// Kind returns the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the cell was empty.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// Float returns the numeric value. Bools convert to 1 and 0.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Bool returns the boolean value for KindBool cells.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// String returns the cell as text. Numbers use the shortest representation
// that round-trips.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Record is one parsed CSV row. It is immutable once built: accessors hand out
// copies.
type Record struct {
	columns []string
	values  []Value
	index   map[string]int
}

// NewRecord builds a Record from parallel column and value slices. Extra
// values without a column are dropped and missing values are Empty.
func NewRecord(columns []string, values []Value) Record {
	r := Record{
		columns: append([]string(nil), columns...),
		values:  make([]Value, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	copy(r.values, values)
	for i, c := range r.columns {
		if _, dup := r.index[c]; !dup {
			r.index[c] = i
		}
	}
	return r
}

// Len returns the number of columns.
func (r Record) Len() int { return len(r.columns) }

// Columns returns the column names in file order.
func (r Record) Columns() []string { return append([]string(nil), r.columns...) }

// Values returns the cell values in column order.
func (r Record) Values() []Value { return append([]Value(nil), r.values...) }

// Get returns the value of the named column.
func (r Record) Get(column string) (Value, bool) {
	i, ok := r.index[column]
	if !ok {
		return Value{}, false
	}
	return r.values[i], true
}

// At returns the value at column position i.
func (r Record) At(i int) Value { return r.values[i] }

// Map returns the record as column name to value.
func (r Record) Map() map[string]Value {
	m := make(map[string]Value, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}
