package report

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/gwr-cli/internal/dataset"
)

// Sheet names of the workbook written by WriteXLSX.
const (
	RecordsSheet     = "records"
	DiagnosticsSheet = "diagnostics"
)

// WriteXLSX exports rs as a workbook with one row per record. columns
// selects and orders the attribute columns; nil exports every field. When
// summary is not nil a diagnostics sheet is added.
func WriteXLSX(path string, rs *dataset.RecordSet, columns []string, summary *Summary) error {
	if columns == nil {
		for _, f := range rs.Fields {
			columns = append(columns, f.Name)
		}
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(RecordsSheet)
	if err != nil {
		return eris.Wrap(err, "report: add records sheet")
	}

	header := sheet.AddRow()
	header.AddCell().SetString("index")
	for _, name := range columns {
		header.AddCell().SetString(name)
	}

	cols := make([]func(r int, c *xlsx.Cell), len(columns))
	for j, name := range columns {
		fi, ok := rs.FieldIndex(name)
		if !ok {
			return eris.Wrapf(dataset.ErrMissingColumn, "report: xlsx column %q", name)
		}
		if !rs.Fields[fi].Numeric() {
			text, err := rs.Text(name)
			if err != nil {
				return eris.Wrapf(err, "report: xlsx column %q", name)
			}
			cols[j] = func(r int, c *xlsx.Cell) { c.SetString(text[r]) }
			continue
		}
		values, err := rs.Column(name)
		if err != nil {
			return eris.Wrapf(err, "report: xlsx column %q", name)
		}
		cols[j] = func(r int, c *xlsx.Cell) { setNumber(c, values[r]) }
	}

	for r, rec := range rs.Records {
		row := sheet.AddRow()
		row.AddCell().SetInt(rec.Index)
		for _, set := range cols {
			set(r, row.AddCell())
		}
	}

	if summary != nil {
		if err := addDiagnostics(f, summary); err != nil {
			return err
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addDiagnostics(f *xlsx.File, s *Summary) error {
	sheet, err := f.AddSheet(DiagnosticsSheet)
	if err != nil {
		return eris.Wrap(err, "report: add diagnostics sheet")
	}

	pair := func(name string, set func(*xlsx.Cell)) {
		row := sheet.AddRow()
		row.AddCell().SetString(name)
		set(row.AddCell())
	}
	pair("kernel", func(c *xlsx.Cell) { c.SetString(s.Kernel) })
	pair("bandwidth", func(c *xlsx.Cell) { c.SetFloat(s.Bandwidth) })
	pair("observations", func(c *xlsx.Cell) { c.SetInt(s.Observations) })
	pair("covariates", func(c *xlsx.Cell) { c.SetInt(s.Covariates) })
	for _, m := range s.Diagnostics {
		pair(m.Name, func(c *xlsx.Cell) { setMetric(c, m.Value) })
	}
	return nil
}

func setNumber(c *xlsx.Cell, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		c.SetString("")
		return
	}
	c.SetFloat(v)
}

func setMetric(c *xlsx.Cell, v *float64) {
	if v == nil {
		c.SetString("")
		return
	}
	c.SetFloat(*v)
}
