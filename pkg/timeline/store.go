// Package timeline reads previously parsed course timelines from
// MongoDB. Timeline lookup jobs resolve against this store instead of
// calling the parse service again.
package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/courseflow/courseflow/pkg/observability/logger"
)

const timelineCollection = "timelines"

// ErrNotFound is returned by Lookup when no timeline exists for the id.
var ErrNotFound = errors.New("timeline not found")

// Store reads timeline records.
type Store interface {
	// Lookup returns the timeline document for id as its JSON payload,
	// or ErrNotFound.
	Lookup(ctx context.Context, id string) (json.RawMessage, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// Config holds MongoDB timeline store configuration.
type Config struct {
	URL              string
	Database         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	client   *mongo.Client
	database string
	log      logger.Logger
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewMongoStore connects to MongoDB and verifies connectivity via ping.
// It does not create indexes or collections.
func NewMongoStore(cfg Config, log logger.Logger) (*MongoStore, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("mongodb URL is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, errors.New("mongodb database is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("MongoDB connection established", "database", cfg.Database)
	return &MongoStore{
		client:   client,
		database: cfg.Database,
		log:      log,
		timeout:  cfg.OperationTimeout,
	}, nil
}

func (s *MongoStore) Lookup(ctx context.Context, id string) (json.RawMessage, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("timeline id is required")
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var raw bson.M
	err := s.collection().FindOne(opCtx, idFilter(id)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("timeline lookup failed: %w", err)
	}

	payload, err := json.Marshal(normalizeDocument(raw))
	if err != nil {
		return nil, fmt.Errorf("encode timeline failed: %w", err)
	}
	return payload, nil
}

func (s *MongoStore) HealthCheck(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Ping(hcCtx, readpref.Primary()); err != nil {
		s.log.Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	return nil
}

func (s *MongoStore) collection() *mongo.Collection {
	return s.client.Database(s.database).Collection(timelineCollection)
}

func (s *MongoStore) ensureOpen() error {
	if s == nil || s.client == nil {
		return errors.New("timeline store is not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("timeline store is closed")
	}
	return nil
}

// idFilter matches the record whether its _id is a raw string or a
// Mongo ObjectID in hex form.
func idFilter(id string) bson.M {
	if objectID, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{objectID, id}}}
	}
	return bson.M{"_id": id}
}

// normalizeDocument replaces a Mongo ObjectID _id with its hex string
// so the payload round-trips through JSON cleanly.
func normalizeDocument(doc bson.M) bson.M {
	if objectID, ok := doc["_id"].(primitive.ObjectID); ok {
		doc["_id"] = objectID.Hex()
	}
	return doc
}
