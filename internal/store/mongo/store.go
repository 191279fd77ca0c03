// Package mongo implements store.Store on MongoDB.
//
// Jobs and orders live in the "jobs" and "orders" collections. Every state
// change is one FindOneAndUpdate whose filter carries the allowed source
// statuses, so the document-level atomicity of MongoDB is the only locking.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/FCJuventus/DoPi-demo/internal/store"
)

// Collection names.
const (
	colJobs   = "jobs"
	colOrders = "orders"
)

var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store.
// The caller owns the *mongo.Client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
	logger logrus.FieldLogger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store on db.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) jobs() *mongod.Collection   { return s.db.Collection(colJobs) }
func (s *Store) orders() *mongod.Collection { return s.db.Collection(colOrders) }

// Migrate creates the indexes used by the list queries and the unique payment id index.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		names, err := s.db.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("store/mongo: migrate %s indexes: %w", col, err)
		}
		s.logger.WithFields(logrus.Fields{"collection": col, "indexes": names}).Info("Indexes ensured")
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client.
func (s *Store) Close(_ context.Context) error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

func isDuplicateKey(err error) bool {
	return err != nil && mongod.IsDuplicateKeyError(err)
}

// objectID parses a hex id. Malformed ids cannot name a stored record.
func objectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, store.ErrNotFound
	}
	return oid, nil
}

func statusValues[S ~string](statuses []S) bson.A {
	out := make(bson.A, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func afterUpdate() *options.FindOneAndUpdateOptionsBuilder {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colJobs: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "creator_uid", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "freelancer_uid", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colOrders: {
			{
				Keys: bson.D{{Key: "payment_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"payment_id": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
			{Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "payer_uid", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
}
