package analysis

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a status query for a nonexistent or evicted record.
var ErrNotFound = errors.New("analysis not found")

// ErrContractViolation indicates a provider that does not satisfy the
// module contract (nil provider, empty name, duplicate name).
var ErrContractViolation = errors.New("module contract violation")

// InvalidRequestError is surfaced synchronously before any record is
// created when a submission fails validation.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: field %q: %s", e.Field, e.Reason)
}

// IsInvalidRequest reports whether err is a validation failure.
func IsInvalidRequest(err error) bool {
	var ire *InvalidRequestError
	return errors.As(err, &ire)
}
