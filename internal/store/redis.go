package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"myhelper/internal/failure"
)

const (
	redisPrefix      = "myhelper"
	maxWatchAttempts = 16
)

// RedisStore keeps records as plain string values and tracks ids per kind in
// a set so List does not need SCAN.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, failure.Wrap(failure.KindStorage, err, "connect redis %s", addr)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func recordKey(kind, id string) string { return fmt.Sprintf("%s:%s:%s", redisPrefix, kind, id) }
func indexKey(kind string) string      { return fmt.Sprintf("%s:index:%s", redisPrefix, kind) }

func (s *RedisStore) Get(ctx context.Context, kind, id string, out any) error {
	if err := checkKey(kind, id); err != nil {
		return err
	}
	data, err := s.client.Get(ctx, recordKey(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return failure.Wrap(failure.KindStorage, err, "get %s/%s", kind, id)
	}
	return decode(kind, id, data, out)
}

func (s *RedisStore) Put(ctx context.Context, kind, id string, v any) error {
	if err := checkKey(kind, id); err != nil {
		return err
	}
	data, err := encode(kind, id, v)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey(kind, id), data, 0)
		pipe.SAdd(ctx, indexKey(kind), id)
		return nil
	})
	return storageErr(err, "put", kind, id)
}

// UpdateAtomic runs an optimistic WATCH/MULTI cycle and retries when another
// writer touched the key in between.
func (s *RedisStore) UpdateAtomic(ctx context.Context, kind, id string, def []byte, mutate Mutator) ([]byte, error) {
	if err := checkKey(kind, id); err != nil {
		return nil, err
	}
	key := recordKey(kind, id)
	var next []byte
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			if def == nil {
				return ErrNotFound
			}
			cur, err = def, nil
		}
		if err != nil {
			return err
		}
		next, err = mutate(cur)
		if errors.Is(err, ErrUnchanged) {
			next = cur
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			pipe.SAdd(ctx, indexKey(kind), id)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, storageErr(err, "update", kind, id)
		}
		return next, nil
	}
	return nil, failure.New(failure.KindStorage, "update %s/%s: too much contention", kind, id)
}

func (s *RedisStore) Create(ctx context.Context, kind string, gen func() string, v any) (string, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := gen()
		if err := checkKey(kind, id); err != nil {
			return "", err
		}
		data, err := encode(kind, id, v)
		if err != nil {
			return "", err
		}
		ok, err := s.client.SetNX(ctx, recordKey(kind, id), data, 0).Result()
		if err != nil {
			return "", storageErr(err, "create", kind, id)
		}
		if !ok {
			continue
		}
		if err := s.client.SAdd(ctx, indexKey(kind), id).Err(); err != nil {
			return "", storageErr(err, "index", kind, id)
		}
		return id, nil
	}
	return "", failure.Wrap(failure.KindStorage, ErrExists, "create %s: id collisions", kind)
}

func (s *RedisStore) List(ctx context.Context, kind string) ([]string, error) {
	if !validName.MatchString(kind) {
		return nil, failure.New(failure.KindValidation, "invalid record kind %q", kind)
	}
	ids, err := s.client.SMembers(ctx, indexKey(kind)).Result()
	if err != nil {
		return nil, failure.Wrap(failure.KindStorage, err, "list %s", kind)
	}
	sort.Strings(ids)
	return ids, nil
}
