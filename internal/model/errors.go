package model

import "github.com/rotisserie/eris"

// Error taxonomy surfaced to the user. Wrap these with eris so the
// classification survives additional context.
var (
	ErrMissingInput       = eris.New("missing input")
	ErrUnrecognizedFormat = eris.New("unrecognized format")
	ErrMalformedData      = eris.New("malformed data")
	ErrDegenerateGeometry = eris.New("degenerate geometry")
)

// Error kind names.
const (
	KindMissingInput       = "MissingInputError"
	KindUnrecognizedFormat = "UnrecognizedFormatError"
	KindMalformedData      = "MalformedDataError"
	KindDegenerateGeometry = "DegenerateGeometryError"
	KindInternal           = "InternalError"
)

// Kind classifies err into the taxonomy. Unclassified errors are KindInternal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case eris.Is(err, ErrMissingInput):
		return KindMissingInput
	case eris.Is(err, ErrUnrecognizedFormat):
		return KindUnrecognizedFormat
	case eris.Is(err, ErrMalformedData):
		return KindMalformedData
	case eris.Is(err, ErrDegenerateGeometry):
		return KindDegenerateGeometry
	default:
		return KindInternal
	}
}
