// Package crdt implements the replicated document structure used for
// real-time collaborative editing. A document is an RGA sequence of blocks;
// each block holds an RGA sequence of runes and a set of last-writer-wins
// attributes. Merging deltas is commutative, associative, and idempotent, so
// concurrent sessions converge to the same state regardless of delivery
// order. Content never shrinks except via tombstoning.
package crdt

import "sort"

// Document is one document's replicated state. It is not safe for concurrent
// use; callers serialize access per document.
type Document struct {
	origin OriginID

	blocks     []*block
	blockIndex map[LogicalTimestamp]*block

	// ledger maps origins to the user id they are attributed to. It grows
	// monotonically; an empty user id marks an origin with no known user.
	ledger map[OriginID]string

	// clock tracks the highest counter observed per origin.
	clock map[OriginID]uint64

	// pending holds operations whose referenced block or item has not
	// arrived yet. They are retried after every merge.
	pending []Op
}

// NewDocument creates an empty replicated document owned by the given origin.
func NewDocument(origin OriginID) *Document {
	return &Document{
		origin:     origin,
		blockIndex: make(map[LogicalTimestamp]*block),
		ledger:     make(map[OriginID]string),
		clock:      make(map[OriginID]uint64),
	}
}

// Origin returns the local session's origin id.
func (d *Document) Origin() OriginID {
	return d.origin
}

// ApplyUpdate decodes a delta blob and merges it into the document.
// A malformed blob yields a DecodeError and leaves the document untouched.
// Re-applying a delta, or applying two deltas in either order, converges to
// the same state.
func (d *Document) ApplyUpdate(blob []byte) error {
	delta, err := DecodeDelta(blob)
	if err != nil {
		return err
	}
	d.merge(delta)
	return nil
}

func (d *Document) merge(delta *Delta) {
	d.recordOrigin(delta.Origin, delta.UserID)

	for _, op := range delta.Ops {
		d.observe(op)
	}
	d.pending = append(d.pending, delta.Ops...)
	d.resolvePending()
}

// resolvePending applies parked operations until a fixpoint: an op whose
// anchor arrived in this merge may in turn unblock ops parked earlier.
func (d *Document) resolvePending() {
	progress := true
	for progress && len(d.pending) > 0 {
		progress = false
		still := d.pending[:0:0]
		for _, op := range d.pending {
			if d.applyOp(op) {
				progress = true
			} else {
				still = append(still, op)
			}
		}
		d.pending = still
	}
}

// applyOp applies a single operation. It returns false when a referenced
// block or item is not present yet; such ops are parked. Operations that are
// structurally valid but semantically stale, like deleting an already
// tombstoned item, apply as no-ops.
func (d *Document) applyOp(op Op) bool {
	switch op.Type {
	case OpInsertBlock:
		if _, ok := d.blockIndex[op.ID]; ok {
			return true
		}
		return d.insertBlock(op)

	case OpDeleteBlock:
		b, ok := d.blockIndex[op.Target]
		if !ok {
			return false
		}
		b.deleted = true
		return true

	case OpInsertText:
		b, ok := d.blockIndex[op.Target]
		if !ok {
			return false
		}
		return b.insertRun(op.After, op.ID, op.Text)

	case OpDeleteText:
		b, ok := d.blockIndex[op.Target]
		if !ok {
			return false
		}
		for _, s := range op.Spans {
			id := s.Start
			for i := uint64(0); i < s.Count; i++ {
				if !b.hasItem(id) {
					return false
				}
				id = id.Next()
			}
		}
		for _, s := range op.Spans {
			b.deleteSpan(s.Start, s.Count)
		}
		return true

	case OpSetAttr:
		b, ok := d.blockIndex[op.Target]
		if !ok {
			return false
		}
		b.setAttr(op.Key, op.Value, op.ID)
		return true
	}

	// Unknown types are rejected at decode time.
	return true
}

func (d *Document) insertBlock(op Op) bool {
	pos := -1
	if !op.After.IsNil() {
		pos = d.blockPos(op.After)
		if pos < 0 {
			return false
		}
	}

	// Same RGA rule as text: concurrent blocks anchored on the same block
	// order by descending timestamp.
	i := pos + 1
	for i < len(d.blocks) && d.blocks[i].id.Compare(op.ID) > 0 {
		i++
	}

	b := newBlock(op.ID, op.Block)
	d.blocks = append(d.blocks[:i], append([]*block{b}, d.blocks[i:]...)...)
	d.blockIndex[op.ID] = b
	return true
}

func (d *Document) blockPos(id LogicalTimestamp) int {
	for i := range d.blocks {
		if d.blocks[i].id == id {
			return i
		}
	}
	return -1
}

func (d *Document) recordOrigin(origin OriginID, userID string) {
	current, ok := d.ledger[origin]
	if !ok {
		d.ledger[origin] = userID
		return
	}
	// The union must be order-independent: a non-empty attribution wins over
	// an empty one, and the lexicographically greater id wins a collision.
	if userID != "" && (current == "" || userID > current) {
		d.ledger[origin] = userID
	}
}

func (d *Document) observe(op Op) {
	last := op.ID.Counter + op.span() - 1
	if current, ok := d.clock[op.ID.Origin]; !ok || last > current {
		d.clock[op.ID.Origin] = last
	}
}

// NextTimestamp allocates the next logical timestamp for the local origin.
func (d *Document) NextTimestamp() LogicalTimestamp {
	counter := d.clock[d.origin] + 1
	d.clock[d.origin] = counter
	return LogicalTimestamp{Origin: d.origin, Counter: counter}
}

// CollaboratorOrigins returns the origins recorded in the attribution
// ledger, sorted for determinism.
func (d *Document) CollaboratorOrigins() []OriginID {
	origins := make([]OriginID, 0, len(d.ledger))
	for origin := range d.ledger {
		origins = append(origins, origin)
	}
	sort.Slice(origins, func(i, j int) bool {
		return origins[i].Compare(origins[j]) < 0
	})
	return origins
}

// Users returns a copy of the origin-to-user attribution ledger.
func (d *Document) Users() map[OriginID]string {
	users := make(map[OriginID]string, len(d.ledger))
	for origin, user := range d.ledger {
		users[origin] = user
	}
	return users
}

// BlockView is a read-only projection of one live block.
type BlockView struct {
	ID    LogicalTimestamp
	Type  BlockType
	Text  string
	Attrs map[string]interface{}
}

// Blocks returns the live blocks in document order.
func (d *Document) Blocks() []BlockView {
	views := make([]BlockView, 0, len(d.blocks))
	for _, b := range d.blocks {
		if b.deleted {
			continue
		}
		view := BlockView{
			ID:   b.id,
			Type: b.typ,
			Text: b.liveText(),
		}
		if len(b.attrs) > 0 {
			view.Attrs = make(map[string]interface{}, len(b.attrs))
			for key, attr := range b.attrs {
				view.Attrs[key] = attr.value
			}
		}
		views = append(views, view)
	}
	return views
}

// LastBlock returns the id of the last live block, or NilID for an empty
// document. It is an anchor helper for local edits.
func (d *Document) LastBlock() LogicalTimestamp {
	for i := len(d.blocks) - 1; i >= 0; i-- {
		if !d.blocks[i].deleted {
			return d.blocks[i].id
		}
	}
	return NilID
}

// LastItem returns the id of the last live text item of a block, or NilID
// when the block is empty or unknown.
func (d *Document) LastItem(blockID LogicalTimestamp) LogicalTimestamp {
	b, ok := d.blockIndex[blockID]
	if !ok {
		return NilID
	}
	for i := len(b.text) - 1; i >= 0; i-- {
		if !b.text[i].deleted {
			return b.text[i].id
		}
	}
	return NilID
}

// LiveSpans returns spans covering every live text item of a block, in
// document order. It is used to build whole-block deletions.
func (d *Document) LiveSpans(blockID LogicalTimestamp) []Span {
	b, ok := d.blockIndex[blockID]
	if !ok {
		return nil
	}
	var spans []Span
	for i := range b.text {
		if b.text[i].deleted {
			continue
		}
		id := b.text[i].id
		n := len(spans)
		if n > 0 && spans[n-1].Start.Increment(spans[n-1].Count) == id {
			spans[n-1].Count++
			continue
		}
		spans = append(spans, Span{Start: id, Count: 1})
	}
	return spans
}
