package crdt

// BlockType identifies the kind of a document block.
type BlockType string

const (
	// BlockParagraph is a plain paragraph of text.
	BlockParagraph BlockType = "paragraph"
	// BlockHeading is a heading; its level lives in the "level" attribute.
	BlockHeading BlockType = "heading"
	// BlockCode is a fenced code block; its language lives in the "lang" attribute.
	BlockCode BlockType = "code"
	// BlockBulletItem is an unordered list item.
	BlockBulletItem BlockType = "bullet_item"
	// BlockOrderedItem is an ordered list item.
	BlockOrderedItem BlockType = "ordered_item"
	// BlockQuote is a block quote.
	BlockQuote BlockType = "quote"
)

// knownBlockTypes is the set of block types accepted from the wire.
var knownBlockTypes = map[BlockType]struct{}{
	BlockParagraph:   {},
	BlockHeading:     {},
	BlockCode:        {},
	BlockBulletItem:  {},
	BlockOrderedItem: {},
	BlockQuote:       {},
}

// textItem is a single rune of replicated text. Deleted items stay in the
// sequence as tombstones so they remain valid anchors for concurrent inserts.
type textItem struct {
	id      LogicalTimestamp
	r       rune
	deleted bool
}

// attrValue is a last-writer-wins register for one block attribute.
type attrValue struct {
	value interface{}
	stamp LogicalTimestamp
}

// block is one replicated document block: an RGA sequence of runes plus a set
// of LWW attributes. Blocks are tombstoned on delete, never removed.
type block struct {
	id      LogicalTimestamp
	typ     BlockType
	deleted bool
	attrs   map[string]attrValue
	text    []textItem
	items   map[LogicalTimestamp]struct{}
}

func newBlock(id LogicalTimestamp, typ BlockType) *block {
	return &block{
		id:    id,
		typ:   typ,
		attrs: make(map[string]attrValue),
		items: make(map[LogicalTimestamp]struct{}),
	}
}

// hasItem reports whether the block contains a text item with the given id,
// live or tombstoned.
func (b *block) hasItem(id LogicalTimestamp) bool {
	_, ok := b.items[id]
	return ok
}

func (b *block) indexOf(id LogicalTimestamp) int {
	for i := range b.text {
		if b.text[i].id == id {
			return i
		}
	}
	return -1
}

// insertRun inserts a run of consecutive runes after the anchor item.
// The first rune carries id first; each subsequent rune increments the
// counter. Returns false when the anchor is not present yet, in which case
// the caller parks the operation. Re-inserting a known run is a no-op.
func (b *block) insertRun(after LogicalTimestamp, first LogicalTimestamp, text string) bool {
	if b.hasItem(first) {
		return true
	}

	pos := -1
	if !after.IsNil() {
		pos = b.indexOf(after)
		if pos < 0 {
			return false
		}
	}

	// RGA insertion rule: concurrent runs anchored on the same item order by
	// descending timestamp of their first rune.
	i := pos + 1
	for i < len(b.text) && b.text[i].id.Compare(first) > 0 {
		i++
	}

	runes := []rune(text)
	run := make([]textItem, len(runes))
	id := first
	for j, r := range runes {
		run[j] = textItem{id: id, r: r}
		b.items[id] = struct{}{}
		id = id.Next()
	}

	b.text = append(b.text[:i], append(run, b.text[i:]...)...)
	return true
}

// deleteSpan tombstones count consecutive item ids starting at start.
// Returns false when any id in the span is not present yet. Tombstoning an
// already-deleted item is a no-op.
func (b *block) deleteSpan(start LogicalTimestamp, count uint64) bool {
	id := start
	for i := uint64(0); i < count; i++ {
		if !b.hasItem(id) {
			return false
		}
		id = id.Next()
	}

	id = start
	remaining := count
	for i := range b.text {
		if remaining == 0 {
			break
		}
		if b.text[i].id == id {
			b.text[i].deleted = true
			id = id.Next()
			remaining--
		}
	}
	return true
}

// setAttr applies a last-writer-wins attribute write.
func (b *block) setAttr(key string, value interface{}, stamp LogicalTimestamp) {
	current, ok := b.attrs[key]
	if ok && current.stamp.Compare(stamp) >= 0 {
		return
	}
	b.attrs[key] = attrValue{value: value, stamp: stamp}
}

// liveText returns the block's visible text.
func (b *block) liveText() string {
	runes := make([]rune, 0, len(b.text))
	for i := range b.text {
		if !b.text[i].deleted {
			runes = append(runes, b.text[i].r)
		}
	}
	return string(runes)
}
