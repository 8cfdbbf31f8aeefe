package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	jsonpatch "github.com/evanphx/json-patch"
)

// MemoryStore is an in-memory Store used in tests and single-node setups.
// Records are deep-copied on the way in and out.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*DocumentRecord
	hooks   []ChangeHook
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*DocumentRecord),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Copy(), nil
}

func (s *MemoryStore) Insert(ctx context.Context, record *DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.records[record.ID]; ok {
		return fmt.Errorf("document %s already exists", record.ID)
	}
	copied := record.Copy()
	copied.Revision = 1
	s.records[record.ID] = copied
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fields UpdateFields) (*DocumentRecord, error) {
	s.mu.Lock()
	record, ok := s.records[id]
	if !ok || s.closed {
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		return nil, ErrNotFound
	}

	before := record.Copy()
	applyFields(record, fields)
	record.Revision++
	after := record.Copy()
	hooks := append([]ChangeHook(nil), s.hooks...)
	s.mu.Unlock()

	patch, err := mergePatch(before, after)
	if err != nil {
		return nil, err
	}
	for _, hook := range hooks {
		hook(ctx, ChangeEvent{DocumentID: id, MergePatch: patch})
	}
	return after, nil
}

func (s *MemoryStore) ConditionalUpdate(ctx context.Context, id string, expectedRevision int64, fields UpdateFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	record, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if record.Revision != expectedRevision {
		return ErrRevisionMismatch
	}
	applyFields(record, fields)
	record.Revision++
	return nil
}

func (s *MemoryStore) OnChange(hook ChangeHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// mergePatch builds the RFC 7396 patch between two record states.
func mergePatch(before, after *DocumentRecord) ([]byte, error) {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal previous record: %w", err)
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal updated record: %w", err)
	}
	patch, err := jsonpatch.CreateMergePatch(beforeJSON, afterJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create merge patch: %w", err)
	}
	return patch, nil
}
