package collab

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jorilallo/outline/core"
	"github.com/jorilallo/outline/crdt"
	"github.com/jorilallo/outline/richtext"
	"github.com/jorilallo/outline/store"
)

// session is the live authoritative state for one document. It exists for
// the duration of active collaboration; the persisted state blob backs it
// across restarts. Access is serialized by the document's lock entry.
type session struct {
	doc *crdt.Document

	// lastText is the last text known to be persisted, the baseline for
	// no-op suppression.
	lastText string

	// hasState records whether the durable record carries a replicated
	// state blob yet. Documents predating collaboration have text but no
	// state and must persist on their first convergence cycle.
	hasState bool

	revision        int64
	title           string
	collectionID    string
	teamID          string
	collaboratorIDs []string

	// lastUsed is read by idle eviction without taking the document lock.
	lastUsed atomic.Int64
}

// loadSession builds a session from the durable record. The replicated
// state is restored from the persisted blob when present, seeded from the
// legacy text otherwise, or created empty for a blank document.
func loadSession(ctx context.Context, st store.Store, documentID string) (*session, error) {
	record, err := st.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	origin := crdt.NewOriginID()
	hasState := len(record.State) > 0

	var doc *crdt.Document
	if hasState {
		doc, err = crdt.DecodeState(record.State, origin)
		if err != nil {
			// A corrupt stored blob must not brick the document: rebuild
			// from the canonical text and let the next persist replace it.
			core.Warn("stored replicated state is corrupt, reseeding from text",
				zap.Error(err),
				zap.String("documentId", documentID))
			doc = nil
			hasState = false
		}
	}
	if doc == nil {
		if record.Text != "" {
			doc = seedFromText(record.Text, origin)
		} else {
			doc = crdt.NewDocument(origin)
		}
	}

	sess := &session{
		doc:             doc,
		lastText:        record.Text,
		hasState:        hasState,
		revision:        record.Revision,
		title:           record.Title,
		collectionID:    record.CollectionID,
		teamID:          record.TeamID,
		collaboratorIDs: record.CollaboratorIDs,
	}
	sess.touch()
	return sess, nil
}

// seedFromText builds replicated state from legacy markdown. The seed is a
// system-origin change with no user attribution, so it contributes nothing
// to the collaborator set.
func seedFromText(text string, origin crdt.OriginID) *crdt.Document {
	doc := crdt.NewDocument(origin)
	tree := richtext.Parse(text)

	change := doc.NewChange("")
	after := crdt.NilID
	for _, b := range tree.Blocks {
		var typ crdt.BlockType
		switch b.Type {
		case richtext.Heading:
			typ = crdt.BlockHeading
		case richtext.CodeBlock:
			typ = crdt.BlockCode
		case richtext.BulletItem:
			typ = crdt.BlockBulletItem
		case richtext.OrderedItem:
			typ = crdt.BlockOrderedItem
		case richtext.Quote:
			typ = crdt.BlockQuote
		default:
			typ = crdt.BlockParagraph
		}

		id := change.InsertBlock(after, typ, b.Text)
		if b.Type == richtext.Heading {
			change.SetAttr(id, "level", b.Level)
		}
		if b.Type == richtext.CodeBlock && b.Language != "" {
			change.SetAttr(id, "lang", b.Language)
		}
		after = id
	}

	if change.Empty() {
		return doc
	}
	blob, err := change.Encode()
	if err != nil {
		// A change built from parsed blocks always encodes.
		core.Error("failed to encode seed change", zap.Error(err))
		return doc
	}
	if err := doc.ApplyUpdate(blob); err != nil {
		core.Error("failed to apply seed change", zap.Error(err))
	}
	return doc
}

func (s *session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}
