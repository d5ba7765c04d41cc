package source

import "github.com/cockroachdb/errors"

// Error taxonomy shared by every source implementation and the reload
// pipeline. Implementations mark their concrete errors with these values so
// callers can classify them with errors.Is.
var (
	// ErrSourceUnavailable means the file or stream could not be opened.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrHeaderCorrupt means the header or index metadata could not be parsed.
	ErrHeaderCorrupt = errors.New("header corrupt")
	// ErrGeometryMalformed means one feature's geometry is unusable.
	ErrGeometryMalformed = errors.New("geometry malformed")
	// ErrTransport means a remote fetch failed. Callers may retry.
	ErrTransport = errors.New("transport error")
	// ErrConsumed is yielded when a feature's events are requested twice.
	ErrConsumed = errors.New("feature geometry already consumed")
)

// Malformedf returns a formatted error marked as ErrGeometryMalformed.
func Malformedf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrGeometryMalformed)
}

// IsFeatureError reports whether err only concerns a single feature, in which
// case the reload should skip the feature and carry on.
func IsFeatureError(err error) bool {
	return errors.Is(err, ErrGeometryMalformed) || errors.Is(err, ErrConsumed)
}
