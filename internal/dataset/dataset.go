// Package dataset reads polygon shapefiles into an ordered, attribute-typed
// record set and writes augmented record sets back out.
package dataset

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Field describes one attribute column using the dBase type codes:
// 'C' character, 'N' numeric, 'F' float, 'D' date, 'L' logical.
type Field struct {
	Name      string
	Type      byte
	Size      uint8
	Precision uint8
}

// Numeric reports whether the column holds numbers.
func (f Field) Numeric() bool {
	return f.Type == 'N' || f.Type == 'F'
}

// Value is a single attribute cell. Numeric columns use Number, all other
// columns use Text. Null marks a missing value.
type Value struct {
	Number float64
	Text   string
	Null   bool
}

// Record is one polygon with its attribute values, aligned with
// RecordSet.Fields. Index is the record's position in the source file.
type Record struct {
	Index    int
	Geometry *geom.MultiPolygon
	Values   []Value
}

// Complete reports whether the record has a geometry and no missing values.
func (r Record) Complete() bool {
	if r.Geometry == nil || r.Geometry.NumPolygons() == 0 {
		return false
	}
	for _, v := range r.Values {
		if v.Null {
			return false
		}
	}
	return true
}

// RecordSet is an ordered collection of records sharing one field schema.
type RecordSet struct {
	Fields  []Field
	Records []Record
	index   map[string]int
}

// New returns an empty record set with the given schema.
func New(fields []Field) *RecordSet {
	rs := &RecordSet{Fields: append([]Field(nil), fields...)}
	rs.reindex()
	return rs
}

func (rs *RecordSet) reindex() {
	rs.index = make(map[string]int, len(rs.Fields))
	for i, f := range rs.Fields {
		rs.index[strings.ToLower(f.Name)] = i
	}
}

// Len returns the number of records.
func (rs *RecordSet) Len() int {
	return len(rs.Records)
}

// FieldIndex looks a column up by name, ignoring case.
func (rs *RecordSet) FieldIndex(name string) (int, bool) {
	if rs.index == nil {
		rs.reindex()
	}
	i, ok := rs.index[strings.ToLower(name)]
	return i, ok
}

// HasColumn reports whether the named column exists.
func (rs *RecordSet) HasColumn(name string) bool {
	_, ok := rs.FieldIndex(name)
	return ok
}

// Column returns the values of a numeric column in record order. Missing
// cells are NaN.
func (rs *RecordSet) Column(name string) ([]float64, error) {
	i, ok := rs.FieldIndex(name)
	if !ok {
		return nil, eris.Wrapf(ErrMissingColumn, "column %q", name)
	}
	if !rs.Fields[i].Numeric() {
		return nil, eris.Wrapf(ErrParse, "column %q is not numeric (type %c)", name, rs.Fields[i].Type)
	}

	out := make([]float64, len(rs.Records))
	for r, rec := range rs.Records {
		v := rec.Values[i]
		if v.Null {
			out[r] = math.NaN()
			continue
		}
		out[r] = v.Number
	}
	return out, nil
}

// Text returns the values of any column as strings in record order.
func (rs *RecordSet) Text(name string) ([]string, error) {
	i, ok := rs.FieldIndex(name)
	if !ok {
		return nil, eris.Wrapf(ErrMissingColumn, "column %q", name)
	}
	out := make([]string, len(rs.Records))
	for r, rec := range rs.Records {
		out[r] = rec.Values[i].Text
	}
	return out, nil
}

// SetColumn adds a float column, or replaces the values of an existing one.
// NaN values are stored as missing.
func (rs *RecordSet) SetColumn(name string, values []float64) error {
	if len(values) != len(rs.Records) {
		return eris.Wrapf(ErrParse, "column %q has %d values for %d records", name, len(values), len(rs.Records))
	}

	i, ok := rs.FieldIndex(name)
	if !ok {
		rs.Fields = append(rs.Fields, Field{Name: name, Type: 'F', Size: 24, Precision: 15})
		i = len(rs.Fields) - 1
		rs.index[strings.ToLower(name)] = i
		for r := range rs.Records {
			rs.Records[r].Values = append(rs.Records[r].Values, Value{})
		}
	} else if !rs.Fields[i].Numeric() {
		return eris.Wrapf(ErrParse, "column %q is not numeric (type %c)", name, rs.Fields[i].Type)
	}

	for r, v := range values {
		rs.Records[r].Values[i] = Value{Number: v, Null: math.IsNaN(v)}
	}
	return nil
}

// Geometries returns the record geometries in order.
func (rs *RecordSet) Geometries() []*geom.MultiPolygon {
	out := make([]*geom.MultiPolygon, len(rs.Records))
	for i, rec := range rs.Records {
		out[i] = rec.Geometry
	}
	return out
}

// Indexes returns each record's position in the source file.
func (rs *RecordSet) Indexes() []int {
	out := make([]int, len(rs.Records))
	for i, rec := range rs.Records {
		out[i] = rec.Index
	}
	return out
}

// DropMissing returns a new record set holding only complete records. The
// relative order and source index of the kept records are preserved.
func DropMissing(rs *RecordSet) *RecordSet {
	out := New(rs.Fields)
	out.Records = make([]Record, 0, len(rs.Records))
	for _, rec := range rs.Records {
		if rec.Complete() {
			rec.Values = append([]Value(nil), rec.Values...)
			out.Records = append(out.Records, rec)
		}
	}
	return out
}
