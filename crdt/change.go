package crdt

// Change accumulates local edits into a delta. Timestamps are allocated from
// the document's clock at build time, so a change must be encoded and applied
// before the next one is started.
//
// The builder never mutates the document directly; the produced delta is
// applied through ApplyUpdate like any remote delta, which keeps local and
// remote edits on the same code path.
type Change struct {
	doc    *Document
	userID string
	ops    []Op
	next   uint64
}

// NewChange starts a change attributed to the given user id. An empty user
// id marks a system-origin change.
func (d *Document) NewChange(userID string) *Change {
	return &Change{
		doc:    d,
		userID: userID,
		next:   d.clock[d.origin],
	}
}

func (c *Change) stamp(span uint64) LogicalTimestamp {
	ts := LogicalTimestamp{Origin: c.doc.origin, Counter: c.next + 1}
	c.next += span
	return ts
}

// InsertBlock inserts a block of the given type after the anchor block
// (NilID for the head of the document) and fills it with text. It returns
// the new block's id.
func (c *Change) InsertBlock(after LogicalTimestamp, typ BlockType, text string) LogicalTimestamp {
	id := c.stamp(1)
	c.ops = append(c.ops, Op{Type: OpInsertBlock, ID: id, After: after, Block: typ})
	if text != "" {
		c.InsertText(id, NilID, text)
	}
	return id
}

// AppendBlock inserts a block after the current last block of the document.
func (c *Change) AppendBlock(typ BlockType, text string) LogicalTimestamp {
	return c.InsertBlock(c.doc.LastBlock(), typ, text)
}

// InsertText inserts text into a block after the anchor item (NilID for the
// start of the block). It returns the id of the first inserted rune.
func (c *Change) InsertText(blockID, after LogicalTimestamp, text string) LogicalTimestamp {
	id := c.stamp(uint64(len([]rune(text))))
	c.ops = append(c.ops, Op{Type: OpInsertText, ID: id, Target: blockID, After: after, Text: text})
	return id
}

// DeleteText tombstones the given spans of a block's text.
func (c *Change) DeleteText(blockID LogicalTimestamp, spans ...Span) {
	if len(spans) == 0 {
		return
	}
	c.ops = append(c.ops, Op{Type: OpDeleteText, ID: c.stamp(1), Target: blockID, Spans: spans})
}

// DeleteBlock tombstones a block.
func (c *Change) DeleteBlock(blockID LogicalTimestamp) {
	c.ops = append(c.ops, Op{Type: OpDeleteBlock, ID: c.stamp(1), Target: blockID})
}

// SetAttr writes a block attribute.
func (c *Change) SetAttr(blockID LogicalTimestamp, key string, value interface{}) {
	c.ops = append(c.ops, Op{Type: OpSetAttr, ID: c.stamp(1), Target: blockID, Key: key, Value: value})
}

// Empty reports whether the change holds no operations.
func (c *Change) Empty() bool {
	return len(c.ops) == 0
}

// Encode produces the delta blob for the accumulated operations.
func (c *Change) Encode() ([]byte, error) {
	delta := &Delta{
		Origin: c.doc.origin,
		UserID: c.userID,
		Ops:    c.ops,
	}
	return delta.Encode()
}
