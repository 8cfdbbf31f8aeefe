// Package store persists document records. It exposes two write paths: a
// general Update that fires registered change hooks, and a low-level
// ConditionalUpdate keyed on the record's revision that bypasses them. The
// convergence pipeline always writes through the conditional path so that a
// merge-driven write never triggers the cascading side effects of the
// general path; its side effects are fired through the event bus instead.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a document record does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrRevisionMismatch is returned by ConditionalUpdate when the record
	// was modified since the expected revision was read.
	ErrRevisionMismatch = errors.New("document revision mismatch")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("store is closed")
)

// DocumentRecord is the durable row for one document.
type DocumentRecord struct {
	ID    string `bson:"_id" json:"id"`
	Title string `bson:"title" json:"title"`

	// Text is the canonical markdown serialization of the document.
	Text string `bson:"text" json:"text"`

	// State is the opaque binary replicated state. Empty for documents that
	// have never been opened for collaborative editing.
	State []byte `bson:"state,omitempty" json:"state,omitempty"`

	// Revision guards optimistic writes; every persisted update increments it.
	Revision int64 `bson:"revision" json:"revision"`

	CollaboratorIDs  []string  `bson:"collaboratorIds,omitempty" json:"collaboratorIds,omitempty"`
	CollectionID     string    `bson:"collectionId,omitempty" json:"collectionId,omitempty"`
	TeamID           string    `bson:"teamId,omitempty" json:"teamId,omitempty"`
	LastModifiedByID string    `bson:"lastModifiedById,omitempty" json:"lastModifiedById,omitempty"`
	CreatedAt        time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Copy creates a deep copy of the record.
func (r *DocumentRecord) Copy() *DocumentRecord {
	if r == nil {
		return nil
	}
	copied := *r
	if r.State != nil {
		copied.State = make([]byte, len(r.State))
		copy(copied.State, r.State)
	}
	if r.CollaboratorIDs != nil {
		copied.CollaboratorIDs = make([]string, len(r.CollaboratorIDs))
		copy(copied.CollaboratorIDs, r.CollaboratorIDs)
	}
	return &copied
}

// UpdateFields names the record fields a write touches. Nil pointers and nil
// slices are left untouched; writes are always partial, never full rewrites.
type UpdateFields struct {
	Title            *string
	Text             *string
	State            []byte
	CollaboratorIDs  []string
	LastModifiedByID *string
	UpdatedAt        *time.Time
}

// ChangeEvent describes a change written through the general update path.
type ChangeEvent struct {
	DocumentID string

	// MergePatch is an RFC 7396 JSON merge patch from the previous record
	// state to the new one.
	MergePatch []byte
}

// ChangeHook observes general-path writes.
type ChangeHook func(ctx context.Context, event ChangeEvent)

// Store is the document record store.
type Store interface {
	// Get retrieves a record by document id, or ErrNotFound.
	Get(ctx context.Context, id string) (*DocumentRecord, error)

	// Insert creates a record with revision 1. The id must be unused.
	Insert(ctx context.Context, record *DocumentRecord) error

	// Update writes fields through the general path and fires change hooks.
	Update(ctx context.Context, id string, fields UpdateFields) (*DocumentRecord, error)

	// ConditionalUpdate writes fields only when the record's revision still
	// equals expectedRevision, incrementing the revision on success. It
	// returns ErrRevisionMismatch when another writer advanced the record
	// first. Change hooks are not fired.
	ConditionalUpdate(ctx context.Context, id string, expectedRevision int64, fields UpdateFields) error

	// OnChange registers a hook fired by general-path updates.
	OnChange(hook ChangeHook)

	// Close releases the store's resources.
	Close() error
}

// applyFields merges fields into a record in place.
func applyFields(record *DocumentRecord, fields UpdateFields) {
	if fields.Title != nil {
		record.Title = *fields.Title
	}
	if fields.Text != nil {
		record.Text = *fields.Text
	}
	if fields.State != nil {
		record.State = fields.State
	}
	if fields.CollaboratorIDs != nil {
		record.CollaboratorIDs = fields.CollaboratorIDs
	}
	if fields.LastModifiedByID != nil {
		record.LastModifiedByID = *fields.LastModifiedByID
	}
	if fields.UpdatedAt != nil {
		record.UpdatedAt = *fields.UpdatedAt
	}
}
