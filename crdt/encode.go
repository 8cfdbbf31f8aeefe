package crdt

import (
	"encoding/json"
	"sort"
)

// stateVersion is the version tag of the encoded state layout.
const stateVersion = 1

type stateItem struct {
	ID      LogicalTimestamp `json:"id"`
	Ch      string           `json:"ch"`
	Deleted bool             `json:"del,omitempty"`
}

type stateAttr struct {
	Key   string           `json:"key"`
	Value interface{}      `json:"value"`
	Stamp LogicalTimestamp `json:"stamp"`
}

type stateBlock struct {
	ID      LogicalTimestamp `json:"id"`
	Type    BlockType        `json:"type"`
	Deleted bool             `json:"del,omitempty"`
	Attrs   []stateAttr      `json:"attrs,omitempty"`
	Text    []stateItem      `json:"text,omitempty"`
}

type stateOrigin struct {
	Origin OriginID `json:"sid"`
	UserID string   `json:"uid,omitempty"`
}

type stateClock struct {
	Origin  OriginID `json:"sid"`
	Counter uint64   `json:"cnt"`
}

type stateEnvelope struct {
	Version int           `json:"v"`
	Blocks  []stateBlock  `json:"blocks"`
	Origins []stateOrigin `json:"origins"`
	Clock   []stateClock  `json:"clock"`
	Pending []Op          `json:"pending,omitempty"`
}

// EncodeState serializes the full replicated state as an opaque blob.
// The encoding is deterministic: equal states produce identical bytes, so a
// byte comparison of two encodings is a state comparison.
func (d *Document) EncodeState() ([]byte, error) {
	env := stateEnvelope{
		Version: stateVersion,
		Blocks:  make([]stateBlock, 0, len(d.blocks)),
		Origins: make([]stateOrigin, 0, len(d.ledger)),
		Clock:   make([]stateClock, 0, len(d.clock)),
	}

	for _, b := range d.blocks {
		sb := stateBlock{
			ID:      b.id,
			Type:    b.typ,
			Deleted: b.deleted,
		}
		if len(b.attrs) > 0 {
			keys := make([]string, 0, len(b.attrs))
			for key := range b.attrs {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				attr := b.attrs[key]
				sb.Attrs = append(sb.Attrs, stateAttr{Key: key, Value: attr.value, Stamp: attr.stamp})
			}
		}
		for _, item := range b.text {
			sb.Text = append(sb.Text, stateItem{ID: item.id, Ch: string(item.r), Deleted: item.deleted})
		}
		env.Blocks = append(env.Blocks, sb)
	}

	for _, origin := range d.CollaboratorOrigins() {
		env.Origins = append(env.Origins, stateOrigin{Origin: origin, UserID: d.ledger[origin]})
	}

	clockOrigins := make([]OriginID, 0, len(d.clock))
	for origin := range d.clock {
		clockOrigins = append(clockOrigins, origin)
	}
	sort.Slice(clockOrigins, func(i, j int) bool {
		return clockOrigins[i].Compare(clockOrigins[j]) < 0
	})
	for _, origin := range clockOrigins {
		env.Clock = append(env.Clock, stateClock{Origin: origin, Counter: d.clock[origin]})
	}

	if len(d.pending) > 0 {
		pending := make([]Op, len(d.pending))
		copy(pending, d.pending)
		sort.Slice(pending, func(i, j int) bool {
			return pending[i].ID.Compare(pending[j].ID) < 0
		})
		env.Pending = pending
	}

	return json.Marshal(env)
}

// DecodeState restores a document from a state blob produced by EncodeState.
// The restored document is owned by the given origin. A corrupt blob yields
// a DecodeError.
func DecodeState(blob []byte, origin OriginID) (*Document, error) {
	var env stateEnvelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, DecodeError{Reason: "malformed state", Err: err}
	}
	if env.Version != stateVersion {
		return nil, DecodeError{Reason: "unsupported state version"}
	}

	d := NewDocument(origin)

	for _, sb := range env.Blocks {
		if sb.ID.IsNil() {
			return nil, DecodeError{Reason: "state block missing id"}
		}
		if _, ok := d.blockIndex[sb.ID]; ok {
			return nil, DecodeError{Reason: "state has duplicate block id " + sb.ID.String()}
		}
		b := newBlock(sb.ID, sb.Type)
		b.deleted = sb.Deleted
		for _, attr := range sb.Attrs {
			b.attrs[attr.Key] = attrValue{value: attr.Value, stamp: attr.Stamp}
		}
		for _, item := range sb.Text {
			runes := []rune(item.Ch)
			if len(runes) != 1 {
				return nil, DecodeError{Reason: "state item is not a single rune"}
			}
			if b.hasItem(item.ID) {
				return nil, DecodeError{Reason: "state has duplicate item id " + item.ID.String()}
			}
			b.text = append(b.text, textItem{id: item.ID, r: runes[0], deleted: item.Deleted})
			b.items[item.ID] = struct{}{}
		}
		d.blocks = append(d.blocks, b)
		d.blockIndex[sb.ID] = b
	}

	for _, so := range env.Origins {
		d.ledger[so.Origin] = so.UserID
	}
	for _, sc := range env.Clock {
		d.clock[sc.Origin] = sc.Counter
	}

	for i := range env.Pending {
		if err := validateOp(&env.Pending[i]); err != nil {
			return nil, err
		}
	}
	d.pending = env.Pending
	d.resolvePending()
	return d, nil
}
