package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("telemetry: not found")
	// ErrDuplicateAnomaly indicates an anomaly already exists for the reading.
	ErrDuplicateAnomaly = errors.New("telemetry: anomaly already recorded for reading")
)

// ValidationError rejects a malformed reading before storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("telemetry: invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
