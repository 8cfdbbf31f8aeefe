// Package collab implements the document convergence pipeline: it merges
// incremental deltas from concurrent editing sessions into a replicated
// document, projects the merged state to canonical text, and persists
// exactly one durable update plus one domain event per meaningful change.
package collab

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jorilallo/outline/core"
	"github.com/jorilallo/outline/crdt"
	"github.com/jorilallo/outline/events"
	"github.com/jorilallo/outline/richtext"
	"github.com/jorilallo/outline/store"
	"github.com/jorilallo/outline/tracker"
)

// UpdateRequest is one incoming delta for a document.
type UpdateRequest struct {
	DocumentID string

	// Delta is the opaque encoded change understood by the crdt package.
	Delta []byte

	// UserID attributes the change. Empty for system-origin merges.
	UserID string
}

// Result reports the outcome of a convergence cycle.
type Result struct {
	// Persisted is false when the cycle was suppressed as a no-op: the
	// merged state projected to the already-persisted text.
	Persisted bool

	Text     string
	Revision int64
}

// Updater drives convergence cycles. It is safe for concurrent use; cycles
// for different documents never block each other.
type Updater struct {
	store store.Store
	bus   events.Bus
	locks *lockRegistry
	opts  *Options

	mu       sync.Mutex
	sessions map[string]*session
}

// NewUpdater creates an updater over the given store and event bus.
func NewUpdater(st store.Store, bus events.Bus, opts ...Option) *Updater {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Updater{
		store:    st,
		bus:      bus,
		locks:    newLockRegistry(),
		opts:     options,
		sessions: make(map[string]*session),
	}
}

// Converge runs one convergence cycle: merge the delta into the document's
// live replicated state, project the canonical text, and persist plus emit
// when the text changed (or when the document has no persisted replicated
// state yet).
//
// A crdt.DecodeError marks the delta as poison: it is not merged, the live
// state is unaffected, and the caller must not re-deliver the same payload.
// A richtext.ProjectionError aborts the cycle without persisting. Both are
// scoped to this cycle; other documents and later deltas are unaffected.
func (u *Updater) Converge(ctx context.Context, req UpdateRequest) (*Result, error) {
	if req.DocumentID == "" {
		return nil, errors.New("document id is required")
	}

	entry := u.locks.acquire(req.DocumentID)
	defer u.locks.release(req.DocumentID, entry)

	entry.mu.Lock()
	sess, err := u.session(ctx, req.DocumentID)
	if err != nil {
		entry.mu.Unlock()
		return nil, err
	}
	sess.touch()

	if err := sess.doc.ApplyUpdate(req.Delta); err != nil {
		entry.mu.Unlock()
		core.Error("dropping undecodable delta",
			zap.Error(err),
			zap.String("documentId", req.DocumentID),
			zap.String("actorId", req.UserID))
		return nil, err
	}
	entry.mu.Unlock()

	return u.compareAndPersist(ctx, req, entry, sess)
}

// session returns the live session for a document, loading it from the
// store on first use. The caller holds the document's lock entry, so two
// cycles cannot load the same document concurrently.
func (u *Updater) session(ctx context.Context, documentID string) (*session, error) {
	u.mu.Lock()
	sess, ok := u.sessions[documentID]
	u.mu.Unlock()
	if ok {
		return sess, nil
	}

	sess, err := loadSession(ctx, u.store, documentID)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	if existing, ok := u.sessions[documentID]; ok {
		sess = existing
	} else {
		u.sessions[documentID] = sess
	}
	u.mu.Unlock()
	return sess, nil
}

// compareAndPersist runs the Compared, Persisting, and Emitted steps. The
// per-document lock is held only across in-memory projection and compare,
// never across persistence I/O; linearization of racing persists comes from
// the store's revision check. On a lost race the fresh winning state is
// merged in and the comparison re-derived, bounded by the retry options.
func (u *Updater) compareAndPersist(ctx context.Context, req UpdateRequest, entry *lockEntry, sess *session) (*Result, error) {
	delay := u.opts.RetryDelay
	var lastErr error

	for attempt := 0; attempt <= u.opts.MaxRetries; attempt++ {
		entry.mu.Lock()
		tree, err := richtext.Project(sess.doc)
		if err != nil {
			entry.mu.Unlock()
			core.Error("merged state failed to project",
				zap.Error(err),
				zap.String("documentId", req.DocumentID))
			return nil, err
		}
		text := tree.Markdown()
		title := tree.Title()

		unchanged := text == sess.lastText
		if unchanged && sess.hasState {
			revision := sess.revision
			entry.mu.Unlock()
			return &Result{Persisted: false, Text: text, Revision: revision}, nil
		}

		stateBlob, err := sess.doc.EncodeState()
		if err != nil {
			entry.mu.Unlock()
			return nil, ConvergenceError{DocumentID: req.DocumentID, Err: err}
		}
		collaborators := tracker.Collaborators(sess.doc, sess.collaboratorIDs)
		expected := sess.revision
		titleChanged := title != "" && title != sess.title
		entry.mu.Unlock()

		fields := store.UpdateFields{
			Text:            &text,
			State:           stateBlob,
			CollaboratorIDs: collaborators,
		}
		if !unchanged {
			now := time.Now()
			fields.UpdatedAt = &now
			if req.UserID != "" {
				userID := req.UserID
				fields.LastModifiedByID = &userID
			}
		}
		if titleChanged {
			newTitle := title
			fields.Title = &newTitle
		}

		err = u.store.ConditionalUpdate(ctx, req.DocumentID, expected, fields)
		if err == nil {
			return u.emit(ctx, req, entry, sess, text, title, expected, collaborators, titleChanged)
		}
		if !errors.Is(err, store.ErrRevisionMismatch) {
			// Transient storage failure. The delta is safe to re-deliver:
			// merging it again is idempotent.
			return nil, ConvergenceError{DocumentID: req.DocumentID, Err: err}
		}
		lastErr = err

		if err := u.refreshAfterConflict(ctx, req.DocumentID, entry, sess); err != nil {
			return nil, err
		}

		jitter := float64(delay) * u.opts.RetryJitter * (rand.Float64()*2 - 1)
		wait := time.Duration(float64(delay) + jitter)
		delay *= 2
		if delay > u.opts.MaxRetryDelay {
			delay = u.opts.MaxRetryDelay
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ConvergenceError{DocumentID: req.DocumentID, Err: ctx.Err()}
		}
	}

	return nil, ConvergenceError{DocumentID: req.DocumentID, Err: lastErr}
}

func (u *Updater) emit(ctx context.Context, req UpdateRequest, entry *lockEntry, sess *session, text, title string, expected int64, collaborators []string, titleChanged bool) (*Result, error) {
	entry.mu.Lock()
	sess.lastText = text
	sess.hasState = true
	if sess.revision < expected+1 {
		sess.revision = expected + 1
	}
	sess.collaboratorIDs = collaborators
	if titleChanged {
		sess.title = title
	}
	// The event carries the record's title, which survives edits that
	// leave the document without a heading.
	eventTitle := sess.title
	revision := sess.revision
	collectionID := sess.collectionID
	teamID := sess.teamID
	entry.mu.Unlock()

	event := events.Event{
		Name:         events.DocumentUpdate,
		DocumentID:   req.DocumentID,
		CollectionID: collectionID,
		TeamID:       teamID,
		ActorID:      req.UserID,
		Multiplayer:  true,
		Title:        eventTitle,
	}
	if err := u.bus.Publish(ctx, event); err != nil {
		core.Error("persisted update but failed to publish change event",
			zap.Error(err),
			zap.String("documentId", req.DocumentID))
		return nil, ConvergenceError{DocumentID: req.DocumentID, Err: err}
	}

	return &Result{Persisted: true, Text: text, Revision: revision}, nil
}

// refreshAfterConflict reloads the record after a lost persist race and
// folds the winner's replicated state into the live document, so the next
// comparison runs against both the fresh text and the union of histories.
func (u *Updater) refreshAfterConflict(ctx context.Context, documentID string, entry *lockEntry, sess *session) error {
	fresh, err := u.store.Get(ctx, documentID)
	if err != nil {
		return ConvergenceError{DocumentID: documentID, Err: err}
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	sess.lastText = fresh.Text
	sess.hasState = len(fresh.State) > 0
	if sess.revision < fresh.Revision {
		sess.revision = fresh.Revision
	}
	sess.collaboratorIDs = fresh.CollaboratorIDs
	sess.title = fresh.Title

	if len(fresh.State) > 0 {
		winner, err := crdt.DecodeState(fresh.State, sess.doc.Origin())
		if err != nil {
			core.Warn("could not merge winning state after persist conflict",
				zap.Error(err),
				zap.String("documentId", documentID))
			return nil
		}
		sess.doc.Merge(winner)
	}
	return nil
}

// ReleaseDocument drops the live session for a document, for example when
// the last collaboration session closed. The next delta reloads it from the
// persisted record.
func (u *Updater) ReleaseDocument(documentID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.sessions, documentID)
}

// ReleaseIdle drops sessions that have not seen a delta within maxIdle and
// returns how many were released.
func (u *Updater) ReleaseIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle).UnixNano()

	u.mu.Lock()
	defer u.mu.Unlock()

	released := 0
	for id, sess := range u.sessions {
		if sess.lastUsed.Load() < cutoff {
			delete(u.sessions, id)
			released++
		}
	}
	return released
}
