package gwr

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrModelFit marks numerical failures: singular local systems, degenerate
// bandwidths and searches that find no usable bandwidth.
var ErrModelFit = eris.New("gwr: model fit failed")

// FitError records where a fit failed. It unwraps to ErrModelFit.
type FitError struct {
	Err       error
	Location  int
	Bandwidth float64
}

func (e *FitError) Error() string {
	if e.Location < 0 {
		return fmt.Sprintf("gwr: bandwidth %g: %v", e.Bandwidth, e.Err)
	}
	return fmt.Sprintf("gwr: location %d, bandwidth %g: %v", e.Location, e.Bandwidth, e.Err)
}

func (e *FitError) Unwrap() error {
	return e.Err
}

func newFitError(location int, bandwidth float64, format string, args ...any) *FitError {
	return &FitError{
		Err:       eris.Wrapf(ErrModelFit, format, args...),
		Location:  location,
		Bandwidth: bandwidth,
	}
}

// IsFitError reports whether err, or any error it wraps, is a FitError.
func IsFitError(err error) bool {
	var fe *FitError
	return errors.As(err, &fe)
}
