// Package report writes fitted GWR results back onto the record set and
// exports them for downstream use.
package report

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gwr-cli/internal/dataset"
	"github.com/sells-group/gwr-cli/internal/features"
	"github.com/sells-group/gwr-cli/internal/gwr"
)

// Attach appends one beta_<name> column per independent variable and a
// residuals column to rs. Independent column i takes coefficient column i+1.
func Attach(rs *dataset.RecordSet, mapping features.CoefficientMapping, res *gwr.Results) error {
	if res == nil || res.Params == nil {
		return eris.New("report: no model results")
	}
	n, k := res.Params.Dims()
	if n != rs.Len() || len(res.Residuals) != rs.Len() {
		return eris.Wrapf(dataset.ErrParse, "report: %d fitted locations for %d records", n, rs.Len())
	}
	if k != mapping.Len()+1 {
		return eris.Wrapf(dataset.ErrParse, "report: %d coefficients for %d independent columns", k, mapping.Len())
	}

	for i := range mapping.Len() {
		if err := rs.SetColumn(mapping.Column(i), res.Param(mapping.Slot(i))); err != nil {
			return eris.Wrapf(err, "report: attach %s", mapping.Column(i))
		}
	}
	if err := rs.SetColumn(features.ResidualsColumn, res.Residuals); err != nil {
		return eris.Wrap(err, "report: attach residuals")
	}

	zap.L().Debug("attached model columns",
		zap.String("component", "report"),
		zap.Strings("columns", mapping.Columns()),
		zap.Int("records", n),
	)
	return nil
}
