package dataset

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
)

// maxFieldName is the dBase limit on column name length.
const maxFieldName = 10

// Write stores the record set as a polygon shapefile (.shp, .shx, .dbf).
// Column names longer than ten characters are truncated, as dBase requires.
func Write(path string, rs *RecordSet) error {
	if !strings.EqualFold(filepath.Ext(path), ".shp") {
		return eris.Errorf("dataset: output %s must have a .shp extension", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "dataset: create output directory")
	}

	fields, err := shpFields(rs.Fields)
	if err != nil {
		return err
	}

	if err := writeShapes(path, fields, rs); err != nil {
		return err
	}

	// go-shp names the attribute table <base>dbf, without the dot.
	base := path[:len(path)-len(filepath.Ext(path))]
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return eris.Wrapf(err, "dataset: move attribute table of %s", path)
	}
	return nil
}

func writeShapes(path string, fields []shp.Field, rs *RecordSet) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}
	defer w.Close()

	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "dataset: set fields")
	}

	for _, rec := range rs.Records {
		row := int(w.Write(toShpPolygon(rec.Geometry)))
		for j, v := range rec.Values {
			if v.Null {
				continue
			}
			cell := formatCell(rs.Fields[j], v)
			if err := w.WriteAttribute(row, j, cell); err != nil {
				return eris.Wrapf(err, "dataset: write record %d field %s", rec.Index, rs.Fields[j].Name)
			}
		}
	}
	return nil
}

func shpFields(fields []Field) ([]shp.Field, error) {
	out := make([]shp.Field, len(fields))
	seen := make(map[string]string, len(fields))
	for i, f := range fields {
		name := f.Name
		if len(name) > maxFieldName {
			name = name[:maxFieldName]
		}
		key := strings.ToLower(name)
		if prev, ok := seen[key]; ok {
			return nil, eris.Errorf("dataset: columns %q and %q collide as %q", prev, f.Name, name)
		}
		seen[key] = f.Name

		switch f.Type {
		case 'F':
			out[i] = shp.FloatField(name, sizeOr(f.Size, 24), f.Precision)
		case 'N':
			out[i] = shp.NumberField(name, sizeOr(f.Size, 18))
			out[i].Precision = f.Precision
		case 'D':
			out[i] = shp.DateField(name)
		case 'L':
			out[i] = shp.StringField(name, 1)
			out[i].Fieldtype = 'L'
		default:
			out[i] = shp.StringField(name, sizeOr(f.Size, 254))
		}
	}
	return out, nil
}

func sizeOr(size, def uint8) uint8 {
	if size == 0 {
		return def
	}
	return size
}

// formatCell renders a value as text that fits the column width, dropping
// decimal places and finally switching to exponent form for wide numbers.
func formatCell(f Field, v Value) string {
	if !f.Numeric() {
		if size := int(f.Size); size > 0 && len(v.Text) > size {
			return v.Text[:size]
		}
		return v.Text
	}
	size := int(sizeOr(f.Size, 24))
	for prec := int(f.Precision); prec >= 0; prec-- {
		s := strconv.FormatFloat(v.Number, 'f', prec, 64)
		if len(s) <= size {
			return s
		}
	}
	for prec := size - 7; prec >= 0; prec-- {
		s := strconv.FormatFloat(v.Number, 'e', prec, 64)
		if len(s) <= size {
			return s
		}
	}
	return strconv.FormatFloat(v.Number, 'e', 0, 64)
}
