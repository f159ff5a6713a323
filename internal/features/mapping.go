package features

// ResidualsColumn names the residual column written back to the records.
const ResidualsColumn = "residuals"

// Intercept is the coefficient slot of the model intercept.
const Intercept = 0

// CoefficientMapping ties each independent column to its coefficient slot
// and output column. Column i of the design matrix is coefficient slot i+1.
type CoefficientMapping struct {
	independent []string
}

// NewMapping returns the mapping for independent columns in model order.
func NewMapping(independent []string) CoefficientMapping {
	return CoefficientMapping{independent: append([]string(nil), independent...)}
}

// Len returns the number of independent columns.
func (m CoefficientMapping) Len() int {
	return len(m.independent)
}

// Name returns independent column i.
func (m CoefficientMapping) Name(i int) string {
	return m.independent[i]
}

// Slot returns the coefficient slot of independent column i.
func (m CoefficientMapping) Slot(i int) int {
	return i + 1
}

// Column returns the output column for independent column i.
func (m CoefficientMapping) Column(i int) string {
	return "beta_" + m.independent[i]
}

// Names returns the independent columns in model order.
func (m CoefficientMapping) Names() []string {
	return append([]string(nil), m.independent...)
}

// Columns returns every output column: one beta per independent column
// followed by the residuals.
func (m CoefficientMapping) Columns() []string {
	out := make([]string, 0, len(m.independent)+1)
	for i := range m.independent {
		out = append(out, m.Column(i))
	}
	return append(out, ResidualsColumn)
}
