package history

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/conversation"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

// turnDoc is the MongoDB document shape for a single turn. One document per
// turn; the (conversation_id, timestamp) pair carries ordering.
type turnDoc struct {
	ConversationID string            `bson:"conversation_id"`
	Role           conversation.Role `bson:"role"`
	Content        string            `bson:"content"`
	Timestamp      time.Time         `bson:"timestamp"`
}

// MongoStore persists conversation turns in a MongoDB collection.
// It is safe for concurrent use; trimming is best-effort under concurrent
// appends to the same conversation (the history server serializes those).
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	max    int
	logger log.Logger
}

// MongoConfig carries the connection parameters for ConnectMongo.
type MongoConfig struct {
	URI              string
	Database         string
	Collection       string
	ConnectTimeout   time.Duration
	MaxHistoryLength int
}

// ConnectMongo connects to MongoDB, verifies the connection with a ping, and
// ensures the indexes the store queries against. Connection failure is fatal
// to the caller: the history server does not start half-connected.
func ConnectMongo(ctx context.Context, cfg MongoConfig, logger log.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	logger.Info("connected to mongodb",
		"database", cfg.Database,
		"collection", cfg.Collection,
		"max_history_length", cfg.MaxHistoryLength)

	return &MongoStore{
		client: client,
		coll:   coll,
		max:    cfg.MaxHistoryLength,
		logger: logger,
	}, nil
}

// History returns the stored turns in chronological order.
func (s *MongoStore) History(ctx context.Context, conversationID string) ([]conversation.Turn, error) {
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "conversation_id", Value: conversationID}},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}

	var docs []turnDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}

	turns := make([]conversation.Turn, len(docs))
	for i, d := range docs {
		turns[i] = conversation.Turn{Role: d.Role, Content: d.Content, Timestamp: d.Timestamp}
	}
	return turns, nil
}

// Append inserts the turns, then drops the oldest documents until the
// conversation is back at the cap.
func (s *MongoStore) Append(ctx context.Context, conversationID string, turns ...conversation.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	docs := make([]any, len(turns))
	for i, t := range turns {
		ts := t.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		docs[i] = turnDoc{
			ConversationID: conversationID,
			Role:           t.Role,
			Content:        t.Content,
			Timestamp:      ts,
		}
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("inserting turns: %w", err)
	}

	return s.trim(ctx, conversationID)
}

// trim deletes the oldest turns above the cap.
func (s *MongoStore) trim(ctx context.Context, conversationID string) error {
	filter := bson.D{{Key: "conversation_id", Value: conversationID}}

	count, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return fmt.Errorf("counting turns: %w", err)
	}
	excess := count - int64(s.max)
	if excess <= 0 {
		return nil
	}

	cur, err := s.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(excess).
		SetProjection(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return fmt.Errorf("finding oldest turns: %w", err)
	}

	var oldest []struct {
		ID bson.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &oldest); err != nil {
		return fmt.Errorf("decoding oldest turns: %w", err)
	}

	ids := make([]bson.ObjectID, len(oldest))
	for i, d := range oldest {
		ids[i] = d.ID
	}
	res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return fmt.Errorf("deleting oldest turns: %w", err)
	}

	s.logger.Debug("trimmed conversation",
		"conversation_id", conversationID,
		"deleted", res.DeletedCount,
		"cap", s.max)
	return nil
}

// Clear removes all turns for a conversation.
func (s *MongoStore) Clear(ctx context.Context, conversationID string) error {
	res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "conversation_id", Value: conversationID}})
	if err != nil {
		return fmt.Errorf("clearing conversation: %w", err)
	}
	s.logger.Info("cleared conversation",
		"conversation_id", conversationID,
		"deleted", res.DeletedCount)
	return nil
}

// Recent lists the most recently active conversations via an aggregation:
// group by conversation id keeping the newest turn and a count, newest first.
func (s *MongoStore) Recent(ctx context.Context, limit int) ([]conversation.Summary, error) {
	if limit <= 0 {
		limit = 10
	}
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$conversation_id"},
			{Key: "latest", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "latest.timestamp", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
	}

	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregating recent conversations: %w", err)
	}

	var rows []struct {
		ID     string  `bson:"_id"`
		Latest turnDoc `bson:"latest"`
		Count  int64   `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decoding recent conversations: %w", err)
	}

	out := make([]conversation.Summary, len(rows))
	for i, r := range rows {
		out[i] = conversation.Summary{
			ConversationID: r.ID,
			LatestTurn: conversation.Turn{
				Role:      r.Latest.Role,
				Content:   r.Latest.Content,
				Timestamp: r.Latest.Timestamp,
			},
			TurnCount: r.Count,
		}
	}
	return out, nil
}

// Ping reports backend reachability for readiness checks.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
