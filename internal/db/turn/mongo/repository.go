package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"relayBot/internal/db/turn"
)

const collectionSuffix = "turns"

type document struct {
	ID        string `bson:"_id"`
	UserID    string `bson:"user_id"`
	Role      string `bson:"role"`
	Content   string `bson:"content"`
	CreatedAt int64  `bson:"created_at"`
	Seed      bool   `bson:"seed"`
}

type RepositoryMongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    zerolog.Logger
}

// Connect opens a client for uri and prepares the turns collection in the
// namespace database.
func Connect(ctx context.Context, uri, namespace string, log zerolog.Logger) (*RepositoryMongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	r := NewRepositoryMongo(client, client.Database(namespace).Collection(collectionSuffix), log)
	if err := r.Init(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return r, nil
}

func NewRepositoryMongo(client *mongo.Client, coll *mongo.Collection, log zerolog.Logger) *RepositoryMongo {
	return &RepositoryMongo{
		client: client,
		coll:   coll,
		log:    log.With().Str("component", "turn/mongo").Logger(),
	}
}

// Init creates the read index and the partial unique index that allows one
// seed turn per user.
func (r *RepositoryMongo) Init(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("user_created"),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("user_seed").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "seed", Value: true}}),
		},
	})
	if err != nil {
		return fmt.Errorf("create turn indexes: %w", err)
	}
	r.log.Info().Str("collection", r.coll.Name()).Msg("[turn/RepositoryMongo.Init] indexes ready")
	return nil
}

func (r *RepositoryMongo) Close() error {
	r.log.Info().Msg("[turn/RepositoryMongo.Close] disconnecting")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func (r *RepositoryMongo) FindRecentTurns(ctx context.Context, userID string, limit int) ([]turn.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "role", Value: 1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, bson.D{{Key: "user_id", Value: userID}}, opts)
	if err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Msg("[turn/RepositoryMongo.FindRecentTurns] find failed")
		return nil, fmt.Errorf("find turns by user_id: %w", err)
	}

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}

	turns := make([]turn.Turn, 0, len(docs))
	for _, d := range docs {
		turns = append(turns, toDomain(d))
	}
	return turns, nil
}

func (r *RepositoryMongo) InsertTurn(ctx context.Context, t turn.Turn) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Seed {
		return r.upsertSeed(ctx, t)
	}
	if _, err := r.coll.InsertOne(ctx, toDocument(t)); err != nil {
		r.log.Error().Err(err).Str("user_id", t.UserID).Msg("[turn/RepositoryMongo.InsertTurn] insert failed")
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// InsertTurns writes the batch with one ordered InsertMany. Mongo stops at the
// first failing document, so everything before it is persisted and reported
// through *turn.PartialWriteError.
func (r *RepositoryMongo) InsertTurns(ctx context.Context, turns []turn.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	if err := turn.ValidateAll(turns); err != nil {
		return err
	}

	docs := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		if t.Seed {
			if err := r.upsertSeed(ctx, t); err != nil {
				return err
			}
			continue
		}
		docs = append(docs, toDocument(t))
	}
	if len(docs) == 0 {
		return nil
	}

	if _, err := r.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		written := 0
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
			written = bwe.WriteErrors[0].Index
		}
		if written > 0 {
			return &turn.PartialWriteError{Written: written, Total: len(docs), Err: err}
		}
		return fmt.Errorf("insert turns: %w", err)
	}
	return nil
}

func (r *RepositoryMongo) upsertSeed(ctx context.Context, t turn.Turn) error {
	filter := bson.D{{Key: "user_id", Value: t.UserID}, {Key: "seed", Value: true}}
	update := bson.D{{Key: "$setOnInsert", Value: toDocument(t)}}
	res, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// A concurrent upsert that lost the race on the unique index already
		// left a seed behind.
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("upsert seed turn: %w", err)
	}
	if res.UpsertedCount == 0 {
		r.log.Debug().Str("user_id", t.UserID).Msg("[turn/RepositoryMongo.upsertSeed] seed already present")
	}
	return nil
}

func toDocument(t turn.Turn) document {
	return document{
		ID:        t.ID,
		UserID:    t.UserID,
		Role:      string(t.Role),
		Content:   t.Content,
		CreatedAt: t.CreatedAt.UnixNano(),
		Seed:      t.Seed,
	}
}

func toDomain(d document) turn.Turn {
	return turn.Turn{
		ID:        d.ID,
		UserID:    d.UserID,
		Role:      turn.Role(d.Role),
		Content:   d.Content,
		CreatedAt: time.Unix(0, d.CreatedAt).UTC(),
		Seed:      d.Seed,
	}
}

var _ turn.Repository = (*RepositoryMongo)(nil)
