package richtext

import (
	"errors"
	"fmt"
)

// ProjectionError is returned when replicated state cannot be projected into
// a canonical tree. Merge invariants should make this impossible; it exists
// as a guard against corrupted state and is treated as a bug signal.
type ProjectionError struct {
	Reason string
}

func (e ProjectionError) Error() string {
	return fmt.Sprintf("projection failed: %s", e.Reason)
}

// IsProjectionError reports whether err is a ProjectionError.
func IsProjectionError(err error) bool {
	var pe ProjectionError
	return errors.As(err, &pe)
}
