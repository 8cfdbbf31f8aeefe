package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/jorilallo/outline/core"
)

// revisionField is the BSON field guarding optimistic writes.
const revisionField = "revision"

// MongoStore is the MongoDB-backed Store. Conditional writes filter on the
// revision field and increment it atomically, so two racing writers cannot
// both succeed against the same revision.
type MongoStore struct {
	collection *mongo.Collection

	mu     sync.Mutex
	hooks  []ChangeHook
	closed bool
}

// NewMongoStore creates a store over the given collection.
func NewMongoStore(collection *mongo.Collection) (*MongoStore, error) {
	if collection == nil {
		return nil, errors.New("collection cannot be nil")
	}
	return &MongoStore{collection: collection}, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*DocumentRecord, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	var record DocumentRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get document")
	}
	return &record, nil
}

func (s *MongoStore) Insert(ctx context.Context, record *DocumentRecord) error {
	if s.isClosed() {
		return ErrClosed
	}

	copied := record.Copy()
	copied.Revision = 1
	now := time.Now()
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}
	if copied.UpdatedAt.IsZero() {
		copied.UpdatedAt = now
	}

	if _, err := s.collection.InsertOne(ctx, copied); err != nil {
		return errors.Wrapf(err, "failed to insert document %s", record.ID)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, id string, fields UpdateFields) (*DocumentRecord, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	update := bson.M{
		"$set": fieldsToSet(fields),
		"$inc": bson.M{revisionField: 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var after DocumentRecord
	err = s.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&after)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to update document %s", id)
	}

	patch, err := mergePatch(before, &after)
	if err != nil {
		return nil, err
	}
	for _, hook := range s.snapshotHooks() {
		hook(ctx, ChangeEvent{DocumentID: id, MergePatch: patch})
	}
	return &after, nil
}

func (s *MongoStore) ConditionalUpdate(ctx context.Context, id string, expectedRevision int64, fields UpdateFields) error {
	if s.isClosed() {
		return ErrClosed
	}

	filter := bson.M{
		"_id":         id,
		revisionField: expectedRevision,
	}
	update := bson.M{
		"$set": fieldsToSet(fields),
		"$inc": bson.M{revisionField: 1},
	}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return errors.Wrapf(err, "failed to update document %s", id)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Distinguish a lost race from a missing record.
	count, err := s.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		core.Warn("failed to check document existence after revision mismatch",
			zap.Error(err),
			zap.String("documentId", id))
		return ErrRevisionMismatch
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrRevisionMismatch
}

func (s *MongoStore) OnChange(hook ChangeHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Close marks the store closed. The MongoDB client is owned by the caller
// and is not disconnected here.
func (s *MongoStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MongoStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MongoStore) snapshotHooks() []ChangeHook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChangeHook(nil), s.hooks...)
}

func fieldsToSet(fields UpdateFields) bson.M {
	set := bson.M{}
	if fields.Title != nil {
		set["title"] = *fields.Title
	}
	if fields.Text != nil {
		set["text"] = *fields.Text
	}
	if fields.State != nil {
		set["state"] = fields.State
	}
	if fields.CollaboratorIDs != nil {
		set["collaboratorIds"] = fields.CollaboratorIDs
	}
	if fields.LastModifiedByID != nil {
		set["lastModifiedById"] = *fields.LastModifiedByID
	}
	if fields.UpdatedAt != nil {
		set["updatedAt"] = *fields.UpdatedAt
	}
	return set
}
