package crdt

import (
	"fmt"

	"github.com/google/uuid"
)

// OriginID identifies the editing session that authored a piece of replicated
// state. It is implemented as a UUID v7 which provides time-ordered values.
type OriginID uuid.UUID

// NilOrigin is the zero value for OriginID. It never authors operations;
// a nil origin inside a timestamp marks the absence of an anchor.
var NilOrigin OriginID

// NewOriginID creates a new OriginID using UUID v7.
// It panics if the UUID cannot be created.
func NewOriginID() OriginID {
	const retry = 3

	var lastErr error
	for i := 0; i < retry; i++ {
		id, err := uuid.NewV7()
		if err == nil {
			return OriginID(id)
		}
		lastErr = err
	}

	panic(lastErr)
}

// ParseOriginID parses an OriginID from its string form.
func ParseOriginID(s string) (OriginID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilOrigin, fmt.Errorf("invalid origin id %q: %w", s, err)
	}
	return OriginID(u), nil
}

// String returns the string representation of the OriginID.
func (o OriginID) String() string {
	return uuid.UUID(o).String()
}

// IsNil reports whether the OriginID is the zero value.
func (o OriginID) IsNil() bool {
	return o == NilOrigin
}

// Compare compares two OriginIDs lexicographically.
// Returns:
//
//	-1 if o < other
//	 0 if o == other
//	 1 if o > other
func (o OriginID) Compare(other OriginID) int {
	for i := 0; i < len(uuid.UUID(o)); i++ {
		if uuid.UUID(o)[i] < uuid.UUID(other)[i] {
			return -1
		}
		if uuid.UUID(o)[i] > uuid.UUID(other)[i] {
			return 1
		}
	}
	return 0
}

// MarshalText implements the encoding.TextMarshaler interface.
func (o OriginID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(o).String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (o *OriginID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return fmt.Errorf("invalid UUID format: %w", err)
	}
	*o = OriginID(u)
	return nil
}

// LogicalTimestamp is a globally unique identifier for a unit of replicated
// state. It consists of an origin ID and a per-origin sequence counter.
type LogicalTimestamp struct {
	Origin  OriginID `json:"sid"`
	Counter uint64   `json:"cnt"`
}

// NilID is the zero value for LogicalTimestamp.
var NilID = LogicalTimestamp{}

// IsNil reports whether the timestamp is the zero value.
func (t LogicalTimestamp) IsNil() bool {
	return t == NilID
}

// Compare compares two logical timestamps. Counters are compared first so
// that later writes order after earlier ones regardless of origin; origin
// bytes break ties between concurrent writes.
// Returns:
//
//	-1 if t < other
//	 0 if t == other
//	 1 if t > other
func (t LogicalTimestamp) Compare(other LogicalTimestamp) int {
	if t.Counter < other.Counter {
		return -1
	}
	if t.Counter > other.Counter {
		return 1
	}
	return t.Origin.Compare(other.Origin)
}

// Next returns the next logical timestamp in the sequence.
func (t LogicalTimestamp) Next() LogicalTimestamp {
	return LogicalTimestamp{
		Origin:  t.Origin,
		Counter: t.Counter + 1,
	}
}

// Increment increments the counter by the given amount.
func (t LogicalTimestamp) Increment(amount uint64) LogicalTimestamp {
	return LogicalTimestamp{
		Origin:  t.Origin,
		Counter: t.Counter + amount,
	}
}

// String returns a string representation of the logical timestamp.
func (t LogicalTimestamp) String() string {
	return fmt.Sprintf("%s:%d", t.Origin, t.Counter)
}
