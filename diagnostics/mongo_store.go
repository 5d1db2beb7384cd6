package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/lessonpipe/config"
)

// mongoTrace 是 trace 在集合中的文档形态，_id 即 run id
type mongoTrace struct {
	Trace     `bson:",inline"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
}

// traceCollection 抽象 MongoStore 使用的集合操作
type traceCollection interface {
	Upsert(ctx context.Context, doc *mongoTrace) error
	FindByID(ctx context.Context, runID string) (*mongoTrace, error)
	Recent(ctx context.Context, limit int) ([]string, error)
}

// MongoStore 把 trace 作为文档写入 MongoDB 集合，过期由 TTL 索引清理
type MongoStore struct {
	coll   traceCollection
	client *mongo.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewMongoStore 连接 MongoDB 并确保 TTL 索引存在
func NewMongoStore(ctx context.Context, cfg config.MongoConfig, ttl time.Duration, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create TTL index: %w", err)
	}

	logger.Info("mongo diagnostics store ready",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)
	s := newMongoStore(&mongoCollection{coll: coll}, ttl)
	s.client = client
	return s, nil
}

func newMongoStore(coll traceCollection, ttl time.Duration) *MongoStore {
	return &MongoStore{coll: coll, ttl: ttl, now: time.Now}
}

// Name implements Store.
func (s *MongoStore) Name() string { return string(StoreTypeMongo) }

// Save implements Store.
func (s *MongoStore) Save(ctx context.Context, trace *Trace) error {
	if err := ValidateRunID(trace.RunID); err != nil {
		return err
	}
	doc := &mongoTrace{Trace: *trace}
	if s.ttl > 0 {
		exp := s.now().Add(s.ttl).UTC()
		doc.ExpiresAt = &exp
	}
	if err := s.coll.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("failed to upsert trace: %w", err)
	}
	return nil
}

// Load implements Loader.
func (s *MongoStore) Load(ctx context.Context, runID string) (*Trace, error) {
	doc, err := s.coll.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	t := doc.Trace
	return &t, nil
}

// List implements Lister.
func (s *MongoStore) List(ctx context.Context, limit int) ([]string, error) {
	return s.coll.Recent(ctx, limit)
}

// Ping implements Pinger.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, nil)
}

// Close 断开连接
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// =============================================================================
// 🍃 mongo.Collection 适配
// =============================================================================

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Upsert(ctx context.Context, doc *mongoTrace) error {
	_, err := c.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.RunID}}, doc, options.Replace().SetUpsert(true))
	return err
}

func (c *mongoCollection) FindByID(ctx context.Context, runID string) (*mongoTrace, error) {
	var doc mongoTrace
	err := c.coll.FindOne(ctx, bson.D{{Key: "_id", Value: runID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find trace: %w", err)
	}
	return &doc, nil
}

func (c *mongoCollection) Recent(ctx context.Context, limit int) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetProjection(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := c.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode trace ids: %w", err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}
