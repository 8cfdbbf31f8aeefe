package crdt

// Merge folds another replica's full state into this document. It is used
// when an optimistic persist loses a race to a writer whose deltas this
// replica has not seen: the winner's persisted state is decoded and merged
// so the next projection reflects the union of both histories.
//
// Like delta application, merging is commutative and idempotent: content
// present in both replicas is left alone, tombstones and attribute writes
// combine monotonically, and unknown blocks and items are inserted with the
// same RGA ordering rule used for live inserts.
func (d *Document) Merge(other *Document) {
	for origin, userID := range other.ledger {
		d.recordOrigin(origin, userID)
	}
	for origin, counter := range other.clock {
		if current, ok := d.clock[origin]; !ok || counter > current {
			d.clock[origin] = counter
		}
	}

	prev := NilID
	for _, theirs := range other.blocks {
		ours, ok := d.blockIndex[theirs.id]
		if !ok {
			// Insert after the previously merged block; every earlier block
			// of the other replica is present by now, so the anchor always
			// resolves and the RGA rule places concurrent blocks
			// consistently.
			d.insertBlock(Op{Type: OpInsertBlock, ID: theirs.id, After: prev, Block: theirs.typ})
			ours = d.blockIndex[theirs.id]
		}
		ours.deleted = ours.deleted || theirs.deleted
		for key, attr := range theirs.attrs {
			ours.setAttr(key, attr.value, attr.stamp)
		}
		mergeText(ours, theirs)
		prev = theirs.id
	}

	d.pending = append(d.pending, other.pending...)
	d.resolvePending()
}

func mergeText(ours, theirs *block) {
	prev := NilID
	for i := range theirs.text {
		item := theirs.text[i]
		if !ours.hasItem(item.id) {
			ours.insertRun(prev, item.id, string(item.r))
		}
		if item.deleted {
			ours.deleteSpan(item.id, 1)
		}
		prev = item.id
	}
}
