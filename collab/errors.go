package collab

import (
	"errors"
	"fmt"
)

// ConvergenceError is returned when a convergence cycle exhausts its persist
// retries or fails in a way that is not attributable to the delta payload.
// It is terminal for the cycle only; the live in-memory state is intact and
// later cycles for the same document proceed normally.
type ConvergenceError struct {
	DocumentID string
	Err        error
}

func (e ConvergenceError) Error() string {
	return fmt.Sprintf("convergence failed for document %s: %v", e.DocumentID, e.Err)
}

func (e ConvergenceError) Unwrap() error {
	return e.Err
}

// IsConvergenceError reports whether err is a ConvergenceError.
func IsConvergenceError(err error) bool {
	var ce ConvergenceError
	return errors.As(err, &ce)
}
