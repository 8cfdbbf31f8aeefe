package crdt

import (
	"errors"
	"fmt"
)

// DecodeError is returned when a delta or state blob cannot be decoded.
// The document is left untouched when a decode fails; callers must not
// advance their delivery cursor for the offending payload.
type DecodeError struct {
	Reason string
	Err    error
}

func (e DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode failed: %s", e.Reason)
}

func (e DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	var de DecodeError
	return errors.As(err, &de)
}
