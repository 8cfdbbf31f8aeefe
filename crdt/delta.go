package crdt

import "encoding/json"

// OpType identifies the kind of a replicated operation.
type OpType string

const (
	// OpInsertBlock inserts a new block after an anchor block.
	OpInsertBlock OpType = "insert_block"
	// OpDeleteBlock tombstones a block.
	OpDeleteBlock OpType = "delete_block"
	// OpInsertText inserts a run of text after an anchor item inside a block.
	OpInsertText OpType = "insert_text"
	// OpDeleteText tombstones spans of text items inside a block.
	OpDeleteText OpType = "delete_text"
	// OpSetAttr writes a block attribute with last-writer-wins semantics.
	OpSetAttr OpType = "set_attr"
)

// Span addresses count consecutive item ids authored by one origin,
// starting at Start.
type Span struct {
	Start LogicalTimestamp `json:"start"`
	Count uint64           `json:"len"`
}

// Op is a single replicated operation. ID is the operation's own timestamp;
// for insert_text it is the id of the first inserted rune and subsequent
// runes increment the counter.
type Op struct {
	Type   OpType           `json:"op"`
	ID     LogicalTimestamp `json:"id"`
	After  LogicalTimestamp `json:"after,omitempty"`
	Target LogicalTimestamp `json:"target,omitempty"`
	Block  BlockType        `json:"blk,omitempty"`
	Key    string           `json:"key,omitempty"`
	Value  interface{}      `json:"value,omitempty"`
	Text   string           `json:"text,omitempty"`
	Spans  []Span           `json:"spans,omitempty"`
}

// span returns the number of counters the op occupies.
func (o Op) span() uint64 {
	if o.Type == OpInsertText {
		n := uint64(len([]rune(o.Text)))
		if n > 0 {
			return n
		}
	}
	return 1
}

// Delta is one incremental update to a replicated document: a batch of
// operations from a single origin, optionally attributed to a user.
type Delta struct {
	Origin OriginID `json:"sid"`
	UserID string   `json:"uid,omitempty"`
	Ops    []Op     `json:"ops"`
}

// Encode serializes the delta to its wire form.
func (d *Delta) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// DecodeDelta parses and validates a delta blob. A malformed blob yields a
// DecodeError and no partial result.
func DecodeDelta(blob []byte) (*Delta, error) {
	var d Delta
	if err := json.Unmarshal(blob, &d); err != nil {
		return nil, DecodeError{Reason: "malformed delta", Err: err}
	}
	if d.Origin.IsNil() {
		return nil, DecodeError{Reason: "delta missing origin"}
	}
	for i := range d.Ops {
		if err := validateOp(&d.Ops[i]); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func validateOp(op *Op) error {
	if op.ID.IsNil() {
		return DecodeError{Reason: "operation missing id"}
	}
	switch op.Type {
	case OpInsertBlock:
		if _, ok := knownBlockTypes[op.Block]; !ok {
			return DecodeError{Reason: "unknown block type " + string(op.Block)}
		}
	case OpDeleteBlock:
		if op.Target.IsNil() {
			return DecodeError{Reason: "delete_block missing target"}
		}
	case OpInsertText:
		if op.Target.IsNil() {
			return DecodeError{Reason: "insert_text missing target"}
		}
		if op.Text == "" {
			return DecodeError{Reason: "insert_text missing text"}
		}
	case OpDeleteText:
		if op.Target.IsNil() {
			return DecodeError{Reason: "delete_text missing target"}
		}
		if len(op.Spans) == 0 {
			return DecodeError{Reason: "delete_text missing spans"}
		}
		for _, s := range op.Spans {
			if s.Start.IsNil() || s.Count == 0 {
				return DecodeError{Reason: "delete_text has empty span"}
			}
		}
	case OpSetAttr:
		if op.Target.IsNil() {
			return DecodeError{Reason: "set_attr missing target"}
		}
		if op.Key == "" {
			return DecodeError{Reason: "set_attr missing key"}
		}
	default:
		return DecodeError{Reason: "unknown operation type " + string(op.Type)}
	}
	return nil
}
