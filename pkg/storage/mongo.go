package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig configures [NewMongoStore].
type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// MongoStore keeps one record per document, keyed by name.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// mongoRecord is the stored shape. Data is kept as a string so the
// document stays readable in the mongo shell.
type mongoRecord struct {
	Name      string    `bson:"_id"`
	Data      string    `bson:"data,omitempty"`
	Size      int       `bson:"size"`
	Checksum  string    `bson:"checksum"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (r mongoRecord) entry() Entry {
	return Entry{
		Info: Info{Name: r.Name, Size: r.Size, Checksum: r.Checksum, UpdatedAt: r.UpdatedAt.UTC()},
		Data: []byte(r.Data),
	}
}

func recordOf(name string, data []byte, at time.Time) mongoRecord {
	info := newInfo(name, data, at)
	return mongoRecord{
		Name:      name,
		Data:      string(data),
		Size:      info.Size,
		Checksum:  info.Checksum,
		UpdatedAt: info.UpdatedAt,
	}
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Database == "" {
		cfg.Database = "flowboard"
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func (s *MongoStore) Get(ctx context.Context, name string) (Entry, error) {
	var rec mongoRecord
	err := s.retry(ctx, func() error {
		return s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&rec)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Entry{}, notFound(name)
	}
	if err != nil {
		return Entry{}, storageErr(err, "get %s", name)
	}
	return verify(rec.entry())
}

func (s *MongoStore) Put(ctx context.Context, name string, data []byte) (Info, error) {
	rec := recordOf(name, data, time.Now())
	err := s.retry(ctx, func() error {
		_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": name}, rec, options.Replace().SetUpsert(true))
		return err
	})
	if err != nil {
		return Info{}, storageErr(err, "put %s", name)
	}
	return rec.entry().Info, nil
}

func (s *MongoStore) Delete(ctx context.Context, name string) error {
	var res *mongo.DeleteResult
	err := s.retry(ctx, func() error {
		var err error
		res, err = s.coll.DeleteOne(ctx, bson.M{"_id": name})
		return err
	})
	if err != nil {
		return storageErr(err, "delete %s", name)
	}
	if res.DeletedCount == 0 {
		return notFound(name)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context) ([]Info, error) {
	opts := options.Find().
		SetProjection(bson.M{"data": 0}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	var recs []mongoRecord
	err := s.retry(ctx, func() error {
		cur, err := s.coll.Find(ctx, bson.M{}, opts)
		if err != nil {
			return err
		}
		return cur.All(ctx, &recs)
	})
	if err != nil {
		return nil, storageErr(err, "list")
	}
	out := make([]Info, len(recs))
	for i, r := range recs {
		out[i] = r.entry().Info
	}
	return out, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) retry(ctx context.Context, fn func() error) error {
	return RetryWithBackoff(ctx, func() error {
		err := fn()
		if err != nil && (mongo.IsNetworkError(err) || mongo.IsTimeout(err)) {
			return Retryable(err)
		}
		return err
	})
}

var _ Store = (*MongoStore)(nil)
