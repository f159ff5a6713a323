package dataset

import "github.com/rotisserie/eris"

// Sentinel errors. Callers match them with eris.Is.
var (
	ErrFileNotFound  = eris.New("dataset: file not found")
	ErrParse         = eris.New("dataset: parse error")
	ErrMissingColumn = eris.New("dataset: missing column")
)
