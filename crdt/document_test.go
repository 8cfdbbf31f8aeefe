package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeDelta builds and applies a change on doc, returning the encoded delta
// for replay on other replicas.
func makeDelta(t *testing.T, doc *Document, userID string, build func(c *Change)) []byte {
	t.Helper()
	change := doc.NewChange(userID)
	build(change)
	blob, err := change.Encode()
	require.NoError(t, err)
	require.NoError(t, doc.ApplyUpdate(blob))
	return blob
}

func stateOf(t *testing.T, doc *Document) []byte {
	t.Helper()
	blob, err := doc.EncodeState()
	require.NoError(t, err)
	return blob
}

func TestApplyUpdateIdempotent(t *testing.T) {
	doc := NewDocument(NewOriginID())
	delta := makeDelta(t, doc, "user1", func(c *Change) {
		c.InsertBlock(NilID, BlockParagraph, "hello world")
	})

	before := stateOf(t, doc)
	require.NoError(t, doc.ApplyUpdate(delta))
	require.NoError(t, doc.ApplyUpdate(delta))
	after := stateOf(t, doc)

	assert.Equal(t, before, after, "re-applying a delta must not change the state")
}

func TestConcurrentBlockInsertsConverge(t *testing.T) {
	// Both replicas start from the same seed block, then insert after it
	// concurrently. Delivery order must not matter.
	seedDoc := NewDocument(NewOriginID())
	var seedBlock LogicalTimestamp
	seed := makeDelta(t, seedDoc, "seed", func(c *Change) {
		seedBlock = c.InsertBlock(NilID, BlockParagraph, "seed")
	})

	replicaA := NewDocument(NewOriginID())
	replicaB := NewDocument(NewOriginID())
	require.NoError(t, replicaA.ApplyUpdate(seed))
	require.NoError(t, replicaB.ApplyUpdate(seed))

	deltaA := makeDelta(t, replicaA, "alice", func(c *Change) {
		c.InsertBlock(seedBlock, BlockParagraph, "from alice")
	})
	deltaB := makeDelta(t, replicaB, "bob", func(c *Change) {
		c.InsertBlock(seedBlock, BlockParagraph, "from bob")
	})

	require.NoError(t, replicaA.ApplyUpdate(deltaB))
	require.NoError(t, replicaB.ApplyUpdate(deltaA))

	assert.Equal(t, stateOf(t, replicaA), stateOf(t, replicaB))

	blocks := replicaA.Blocks()
	require.Len(t, blocks, 3)
	assert.Equal(t, "seed", blocks[0].Text)
}

func TestConcurrentTextInsertsConverge(t *testing.T) {
	seedDoc := NewDocument(NewOriginID())
	var blockID LogicalTimestamp
	seed := makeDelta(t, seedDoc, "seed", func(c *Change) {
		blockID = c.InsertBlock(NilID, BlockParagraph, "ad")
	})

	replicaA := NewDocument(NewOriginID())
	replicaB := NewDocument(NewOriginID())
	require.NoError(t, replicaA.ApplyUpdate(seed))
	require.NoError(t, replicaB.ApplyUpdate(seed))

	anchorA := replicaA.LastItem(blockID)
	deltaA := makeDelta(t, replicaA, "alice", func(c *Change) {
		c.InsertText(blockID, anchorA, "xyz")
	})
	anchorB := replicaB.LastItem(blockID)
	deltaB := makeDelta(t, replicaB, "bob", func(c *Change) {
		c.InsertText(blockID, anchorB, "123")
	})

	require.NoError(t, replicaA.ApplyUpdate(deltaB))
	require.NoError(t, replicaB.ApplyUpdate(deltaA))

	assert.Equal(t, stateOf(t, replicaA), stateOf(t, replicaB))

	blocks := replicaA.Blocks()
	require.Len(t, blocks, 1)
	// Each concurrent run stays contiguous.
	assert.Contains(t, blocks[0].Text, "xyz")
	assert.Contains(t, blocks[0].Text, "123")
	assert.Len(t, blocks[0].Text, 8)
}

func TestDeltaParkedUntilAnchorArrives(t *testing.T) {
	author := NewDocument(NewOriginID())
	var blockID LogicalTimestamp
	first := makeDelta(t, author, "alice", func(c *Change) {
		blockID = c.InsertBlock(NilID, BlockParagraph, "hello")
	})
	anchor := author.LastItem(blockID)
	second := makeDelta(t, author, "alice", func(c *Change) {
		c.InsertText(blockID, anchor, "!")
	})

	// Out of order: the text insert references a block the replica has
	// never seen, so it parks until the block arrives.
	replica := NewDocument(NewOriginID())
	require.NoError(t, replica.ApplyUpdate(second))
	assert.Empty(t, replica.Blocks())

	require.NoError(t, replica.ApplyUpdate(first))
	blocks := replica.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "hello!", blocks[0].Text)

	assert.Equal(t, stateOf(t, author), stateOf(t, replica))
}

func TestDeleteIsTombstoneNotRemoval(t *testing.T) {
	seedDoc := NewDocument(NewOriginID())
	var blockID LogicalTimestamp
	seed := makeDelta(t, seedDoc, "seed", func(c *Change) {
		blockID = c.InsertBlock(NilID, BlockParagraph, "abcdef")
	})

	replicaA := NewDocument(NewOriginID())
	replicaB := NewDocument(NewOriginID())
	require.NoError(t, replicaA.ApplyUpdate(seed))
	require.NoError(t, replicaB.ApplyUpdate(seed))

	// Alice deletes "cdef" while Bob concurrently inserts after "f", which
	// will be a tombstone by the time his delta lands on Alice's replica.
	spans := replicaA.LiveSpans(blockID)
	require.Len(t, spans, 1)
	deleteTail := Span{Start: spans[0].Start.Increment(2), Count: 4}
	deltaA := makeDelta(t, replicaA, "alice", func(c *Change) {
		c.DeleteText(blockID, deleteTail)
	})

	anchorB := replicaB.LastItem(blockID)
	deltaB := makeDelta(t, replicaB, "bob", func(c *Change) {
		c.InsertText(blockID, anchorB, "!")
	})

	require.NoError(t, replicaA.ApplyUpdate(deltaB))
	require.NoError(t, replicaB.ApplyUpdate(deltaA))

	assert.Equal(t, stateOf(t, replicaA), stateOf(t, replicaB))

	blocks := replicaA.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "ab!", blocks[0].Text)
}

func TestDeleteBlockWinsOverConcurrentEdit(t *testing.T) {
	seedDoc := NewDocument(NewOriginID())
	var blockID LogicalTimestamp
	seed := makeDelta(t, seedDoc, "seed", func(c *Change) {
		blockID = c.InsertBlock(NilID, BlockParagraph, "doomed")
	})

	replicaA := NewDocument(NewOriginID())
	replicaB := NewDocument(NewOriginID())
	require.NoError(t, replicaA.ApplyUpdate(seed))
	require.NoError(t, replicaB.ApplyUpdate(seed))

	deltaA := makeDelta(t, replicaA, "alice", func(c *Change) {
		c.DeleteBlock(blockID)
	})
	anchorB := replicaB.LastItem(blockID)
	deltaB := makeDelta(t, replicaB, "bob", func(c *Change) {
		c.InsertText(blockID, anchorB, " and edited")
	})

	require.NoError(t, replicaA.ApplyUpdate(deltaB))
	require.NoError(t, replicaB.ApplyUpdate(deltaA))

	assert.Equal(t, stateOf(t, replicaA), stateOf(t, replicaB))
	assert.Empty(t, replicaA.Blocks())
}

func TestAttributeLastWriterWins(t *testing.T) {
	seedDoc := NewDocument(NewOriginID())
	var blockID LogicalTimestamp
	seed := makeDelta(t, seedDoc, "seed", func(c *Change) {
		blockID = c.InsertBlock(NilID, BlockHeading, "Title")
	})

	replicaA := NewDocument(NewOriginID())
	replicaB := NewDocument(NewOriginID())
	require.NoError(t, replicaA.ApplyUpdate(seed))
	require.NoError(t, replicaB.ApplyUpdate(seed))

	deltaA := makeDelta(t, replicaA, "alice", func(c *Change) {
		c.SetAttr(blockID, "level", 2)
	})
	deltaB := makeDelta(t, replicaB, "bob", func(c *Change) {
		c.SetAttr(blockID, "level", 3)
	})

	require.NoError(t, replicaA.ApplyUpdate(deltaB))
	require.NoError(t, replicaB.ApplyUpdate(deltaA))

	assert.Equal(t, stateOf(t, replicaA), stateOf(t, replicaB))

	blocksA := replicaA.Blocks()
	blocksB := replicaB.Blocks()
	require.Len(t, blocksA, 1)
	assert.Equal(t, blocksA[0].Attrs["level"], blocksB[0].Attrs["level"])
}

func TestDecodeErrorLeavesStateUntouched(t *testing.T) {
	doc := NewDocument(NewOriginID())
	makeDelta(t, doc, "alice", func(c *Change) {
		c.InsertBlock(NilID, BlockParagraph, "intact")
	})
	before := stateOf(t, doc)

	for _, blob := range [][]byte{
		nil,
		[]byte("not json"),
		[]byte(`{"ops":[{"op":"insert_block"}]}`),
		[]byte(`{"sid":"00000000-0000-0000-0000-000000000000","ops":[]}`),
	} {
		err := doc.ApplyUpdate(blob)
		require.Error(t, err)
		assert.True(t, IsDecodeError(err), "expected a decode error, got %v", err)
	}

	assert.Equal(t, before, stateOf(t, doc))
}

func TestStateRoundTrip(t *testing.T) {
	doc := NewDocument(NewOriginID())
	var blockID LogicalTimestamp
	makeDelta(t, doc, "alice", func(c *Change) {
		blockID = c.InsertBlock(NilID, BlockHeading, "Notes")
		c.SetAttr(blockID, "level", 2)
	})
	makeDelta(t, doc, "bob", func(c *Change) {
		c.InsertBlock(blockID, BlockCode, "fmt.Println()")
	})

	blob := stateOf(t, doc)
	restored, err := DecodeState(blob, NewOriginID())
	require.NoError(t, err)

	assert.Equal(t, blob, stateOf(t, restored))
	assert.Equal(t, doc.Blocks(), restored.Blocks())
	assert.Equal(t, doc.Users(), restored.Users())
}

func TestDecodeStateRejectsCorruptBlob(t *testing.T) {
	for _, blob := range [][]byte{
		[]byte("garbage"),
		[]byte(`{"v":99,"blocks":[]}`),
		[]byte(`{"v":1,"blocks":[{"id":{"sid":"","cnt":0}}]}`),
	} {
		_, err := DecodeState(blob, NewOriginID())
		require.Error(t, err)
		assert.True(t, IsDecodeError(err))
	}
}

func TestMergeFoldsDivergentHistories(t *testing.T) {
	seedDoc := NewDocument(NewOriginID())
	var blockID LogicalTimestamp
	seed := makeDelta(t, seedDoc, "seed", func(c *Change) {
		blockID = c.InsertBlock(NilID, BlockParagraph, "base")
	})

	replicaA := NewDocument(NewOriginID())
	replicaB := NewDocument(NewOriginID())
	require.NoError(t, replicaA.ApplyUpdate(seed))
	require.NoError(t, replicaB.ApplyUpdate(seed))

	deltaA := makeDelta(t, replicaA, "alice", func(c *Change) {
		c.InsertBlock(blockID, BlockParagraph, "only alice saw this")
	})
	deltaB := makeDelta(t, replicaB, "bob", func(c *Change) {
		c.InsertBlock(blockID, BlockQuote, "only bob saw this")
	})

	// Full-state merge must land on the same result as delta delivery.
	replicaA.Merge(replicaB)

	reference := NewDocument(NewOriginID())
	require.NoError(t, reference.ApplyUpdate(seed))
	require.NoError(t, reference.ApplyUpdate(deltaA))
	require.NoError(t, reference.ApplyUpdate(deltaB))

	assert.Equal(t, stateOf(t, reference), stateOf(t, replicaA))
	assert.ElementsMatch(t, []string{"seed", "alice", "bob"}, userValues(replicaA))
}

func TestMergeIdempotent(t *testing.T) {
	replicaA := NewDocument(NewOriginID())
	makeDelta(t, replicaA, "alice", func(c *Change) {
		c.InsertBlock(NilID, BlockParagraph, "alpha")
	})
	replicaB := NewDocument(NewOriginID())
	makeDelta(t, replicaB, "bob", func(c *Change) {
		c.InsertBlock(NilID, BlockParagraph, "beta")
	})

	replicaA.Merge(replicaB)
	once := stateOf(t, replicaA)
	replicaA.Merge(replicaB)

	assert.Equal(t, once, stateOf(t, replicaA))
}

func TestCollaboratorLedgerUnions(t *testing.T) {
	doc := NewDocument(NewOriginID())
	makeDelta(t, doc, "alice", func(c *Change) {
		c.InsertBlock(NilID, BlockParagraph, "a")
	})

	other := NewDocument(NewOriginID())
	otherDelta := makeDelta(t, other, "bob", func(c *Change) {
		c.InsertBlock(NilID, BlockParagraph, "b")
	})
	require.NoError(t, doc.ApplyUpdate(otherDelta))

	assert.ElementsMatch(t, []string{"alice", "bob"}, userValues(doc))
}

func userValues(doc *Document) []string {
	users := doc.Users()
	values := make([]string, 0, len(users))
	for _, userID := range users {
		values = append(values, userID)
	}
	return values
}
