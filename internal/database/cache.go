package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/dispatcher"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// CachedExtraction is the document stored per (url, mode).
type CachedExtraction struct {
	Key       string                  `bson:"key"`
	SourceURL string                  `bson:"source_url"`
	Mode      models.Mode             `bson:"mode"`
	Result    models.ExtractionResult `bson:"result"`
	CreatedAt time.Time               `bson:"created_at"`
}

// ResultStore persists successful extractions.
type ResultStore interface {
	Get(ctx context.Context, key string) (*models.ExtractionResult, error)
	Put(ctx context.Context, entry CachedExtraction) error
}

var ErrCacheMiss = errors.New("cache miss")

// CacheKey derives the document key from the normalized request.
func CacheKey(req models.MediaRequest) string {
	mode, err := models.ParseMode(string(req.Mode))
	if err != nil {
		mode = req.Mode
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(req.SourceURL) + "|" + string(mode)))
	return hex.EncodeToString(sum[:])
}

type mongoStore struct {
	collection *mongo.Collection
	ttl        time.Duration
	now        func() time.Time
}

// ResultStore returns the Mongo-backed store for the extractions collection.
func (m *MongoDB) ResultStore() ResultStore {
	return &mongoStore{collection: m.extractions, ttl: m.ttl, now: time.Now}
}

func (s *mongoStore) Get(ctx context.Context, key string) (*models.ExtractionResult, error) {
	filter := bson.M{"key": key}
	if s.ttl > 0 {
		// the TTL monitor only runs once a minute
		filter["created_at"] = bson.M{"$gt": s.now().Add(-s.ttl)}
	}

	var entry CachedExtraction
	err := s.collection.FindOne(ctx, filter).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return &entry.Result, nil
}

func (s *mongoStore) Put(ctx context.Context, entry CachedExtraction) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"key": entry.Key}, entry, opts)
	return err
}

// CachedResolver serves repeated extractions from the store. Store errors
// are logged and never fail the request.
type CachedResolver struct {
	next  dispatcher.Resolver
	store ResultStore
}

func NewCachedResolver(next dispatcher.Resolver, store ResultStore) *CachedResolver {
	return &CachedResolver{next: next, store: store}
}

func (c *CachedResolver) Resolve(ctx context.Context, req models.MediaRequest) (*models.ExtractionResult, error) {
	key := CacheKey(req)

	cached, err := c.store.Get(ctx, key)
	switch {
	case err == nil && cached != nil && len(cached.Options) > 0:
		utils.LogDebug(ctx, "Extraction served from cache", logrus.Fields{"url": req.SourceURL, "source": cached.Source})
		return cached, nil
	case err != nil && !errors.Is(err, ErrCacheMiss):
		utils.LogWarn(ctx, "Extraction cache lookup failed", logrus.Fields{"error": err.Error()})
	}

	result, err := c.next.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	mode, _ := models.ParseMode(string(req.Mode))
	entry := CachedExtraction{
		Key:       key,
		SourceURL: strings.TrimSpace(req.SourceURL),
		Mode:      mode,
		Result:    *result,
	}
	if err := c.store.Put(ctx, entry); err != nil {
		utils.LogWarn(ctx, "Failed to cache extraction", logrus.Fields{"error": err.Error()})
	}

	return result, nil
}
