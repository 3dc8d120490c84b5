package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures [NewRedisStore].
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	// Prefix namespaces every key. Defaults to "flowboard:".
	Prefix string `toml:"prefix"`
}

// RedisStore keeps each document in a hash (data, checksum, updated) and
// indexes names in a sorted set scored by update time.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "flowboard:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) docKey(name string) string { return s.prefix + "doc:" + name }
func (s *RedisStore) indexKey() string          { return s.prefix + "docs" }

const (
	fieldData     = "data"
	fieldChecksum = "checksum"
	fieldUpdated  = "updated"
)

func (s *RedisStore) Get(ctx context.Context, name string) (Entry, error) {
	var vals []any
	err := s.retry(ctx, func() error {
		var err error
		vals, err = s.client.HMGet(ctx, s.docKey(name), fieldData, fieldChecksum, fieldUpdated).Result()
		return err
	})
	if err != nil {
		return Entry{}, storageErr(err, "get %s", name)
	}
	data, ok := vals[0].(string)
	if !ok {
		return Entry{}, notFound(name)
	}
	checksum, _ := vals[1].(string)
	return verify(Entry{
		Info: Info{
			Name:      name,
			Size:      len(data),
			Checksum:  checksum,
			UpdatedAt: parseUnixNano(vals[2]),
		},
		Data: []byte(data),
	})
}

func (s *RedisStore) Put(ctx context.Context, name string, data []byte) (Info, error) {
	info := newInfo(name, data, time.Now())
	err := s.retry(ctx, func() error {
		pipe := s.client.TxPipeline()
		pipe.HSet(ctx, s.docKey(name),
			fieldData, data,
			fieldChecksum, info.Checksum,
			fieldUpdated, info.UpdatedAt.UnixNano(),
		)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(info.UpdatedAt.UnixNano()), Member: name})
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return Info{}, storageErr(err, "put %s", name)
	}
	return info, nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	var removed int64
	err := s.retry(ctx, func() error {
		pipe := s.client.TxPipeline()
		del := pipe.Del(ctx, s.docKey(name))
		pipe.ZRem(ctx, s.indexKey(), name)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		removed = del.Val()
		return nil
	})
	if err != nil {
		return storageErr(err, "delete %s", name)
	}
	if removed == 0 {
		return notFound(name)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Info, error) {
	var names []string
	err := s.retry(ctx, func() error {
		var err error
		names, err = s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
		return err
	})
	if err != nil {
		return nil, storageErr(err, "list")
	}

	out := make([]Info, 0, len(names))
	if len(names) == 0 {
		return out, nil
	}
	meta := make([]*redis.SliceCmd, len(names))
	sizes := make([]*redis.IntCmd, len(names))
	err = s.retry(ctx, func() error {
		pipe := s.client.Pipeline()
		for i, name := range names {
			meta[i] = pipe.HMGet(ctx, s.docKey(name), fieldChecksum, fieldUpdated)
			sizes[i] = pipe.HStrLen(ctx, s.docKey(name), fieldData)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return nil, storageErr(err, "list")
	}
	for i, name := range names {
		vals := meta[i].Val()
		checksum, ok := vals[0].(string)
		if !ok {
			continue // index entry without a document
		}
		out = append(out, Info{
			Name:      name,
			Size:      int(sizes[i].Val()),
			Checksum:  checksum,
			UpdatedAt: parseUnixNano(vals[1]),
		})
	}
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) retry(ctx context.Context, fn func() error) error {
	return RetryWithBackoff(ctx, func() error {
		err := fn()
		if err != nil && !errors.Is(err, redis.Nil) && transient(err) {
			return Retryable(err)
		}
		return err
	})
}

func parseUnixNano(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

var _ Store = (*RedisStore)(nil)
