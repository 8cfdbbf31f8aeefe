// Package events carries the domain events emitted after a document write
// is persisted. Downstream listeners (notification dispatch, search
// reindexing, revision snapshotting) subscribe to the bus; the convergence
// pipeline never calls them directly.
package events

import "context"

// DocumentUpdate is the event name emitted when a collaborative merge
// persisted new document content.
const DocumentUpdate = "documents.update"

// Event is one domain event.
type Event struct {
	Name         string `json:"name"`
	DocumentID   string `json:"documentId"`
	CollectionID string `json:"collectionId,omitempty"`
	TeamID       string `json:"teamId,omitempty"`

	// ActorID is the attributed user, empty for system-origin merges.
	ActorID string `json:"actorId,omitempty"`

	// Multiplayer marks events that originated from a collaborative merge
	// rather than a single-author save.
	Multiplayer bool `json:"multiplayer,omitempty"`

	Title string `json:"title,omitempty"`
}

// Bus publishes domain events to downstream listeners.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
