package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const maxUpdateRetries = 5

// RedisStore keeps each document as a JSON string at <prefix>:<collection>:<id>
// and tracks the ids of a collection in the set <prefix>:<collection>:_ids.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tb"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) docKey(collection, id string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, collection, id)
}

func (r *RedisStore) idsKey(collection string) string {
	return fmt.Sprintf("%s:%s:_ids", r.prefix, collection)
}

func (r *RedisStore) Get(ctx context.Context, collection, id string, out any) error {
	raw, err := r.client.Get(ctx, r.docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get %s/%s: %w", collection, id, err)
	}
	return json.Unmarshal(raw, out)
}

func (r *RedisStore) Set(ctx context.Context, collection, id string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.docKey(collection, id), raw, 0)
		pipe.SAdd(ctx, r.idsKey(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update merges fields under WATCH so a concurrent write to the same
// document forces a retry instead of being overwritten.
func (r *RedisStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	key := r.docKey(collection, id)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		merged, err := mergeFields(raw, fields)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, merged, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("redis update %s/%s: %w", collection, id, err)
		}
		return err
	}
	return fmt.Errorf("redis update %s/%s: too much contention", collection, id)
}

func (r *RedisStore) Delete(ctx context.Context, collection, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.docKey(collection, id))
		pipe.SRem(ctx, r.idsKey(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (r *RedisStore) QueryByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	docs, err := r.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	matched := docs[:0]
	for _, doc := range docs {
		if matchField(doc.Data, field, value) {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

func (r *RedisStore) List(ctx context.Context, collection string) ([]Document, error) {
	ids, err := r.client.SMembers(ctx, r.idsKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return []Document{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(collection, id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// id set and document drifted apart; skip the stale id
			continue
		}
		docs = append(docs, Document{ID: ids[i], Data: json.RawMessage(s)})
	}
	sortDocuments(docs)
	return docs, nil
}

func (r *RedisStore) PushID(string) string { return newID() }

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
