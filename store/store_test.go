package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string         `json:"name"`
	Owner string         `json:"owner"`
	Count int            `json:"count"`
	Data  map[string]any `json:"data,omitempty"`
}

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test"), mr
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	s, mr := setupRedisStore(t)
	runStoreContract(t, s)

	t.Run("documents are namespaced by prefix", func(t *testing.T) {
		require.NoError(t, s.Set(context.Background(), "boards", "b1", record{Name: "x"}))
		assert.True(t, mr.Exists("test:boards:b1"))
		ok, err := mr.SIsMember("test:boards:_ids", "b1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stale id without document is skipped", func(t *testing.T) {
		_, err := mr.SAdd("test:ghosts:_ids", "gone")
		require.NoError(t, err)
		docs, err := s.List(context.Background(), "ghosts")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}

func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		var r record
		assert.ErrorIs(t, s.Get(ctx, "items", "missing", &r), ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "items", "a", record{Name: "alpha", Owner: "u1", Count: 1}))
		var r record
		require.NoError(t, s.Get(ctx, "items", "a", &r))
		assert.Equal(t, "alpha", r.Name)
		assert.Equal(t, 1, r.Count)
	})

	t.Run("update merges fields", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "items", "b", record{Name: "beta", Owner: "u1", Data: map[string]any{"status": "pending", "boardName": "Sprint"}}))
		require.NoError(t, s.Update(ctx, "items", "b", map[string]any{"count": 5, "data.status": "accepted"}))

		var r record
		require.NoError(t, s.Get(ctx, "items", "b", &r))
		assert.Equal(t, "beta", r.Name)
		assert.Equal(t, 5, r.Count)
		assert.Equal(t, "accepted", r.Data["status"])
		assert.Equal(t, "Sprint", r.Data["boardName"])
	})

	t.Run("update missing returns ErrNotFound", func(t *testing.T) {
		err := s.Update(ctx, "items", "nope", map[string]any{"count": 1})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("query by field", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "owned", "1", record{Name: "one", Owner: "alice"}))
		require.NoError(t, s.Set(ctx, "owned", "2", record{Name: "two", Owner: "bob"}))
		require.NoError(t, s.Set(ctx, "owned", "3", record{Name: "three", Owner: "alice"}))

		docs, err := s.QueryByField(ctx, "owned", "owner", "alice")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "1", docs[0].ID)
		assert.Equal(t, "3", docs[1].ID)

		var r record
		require.NoError(t, docs[1].Decode(&r))
		assert.Equal(t, "three", r.Name)
	})

	t.Run("query by nested field", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "nested", "n1", record{Data: map[string]any{"invitationId": "inv-1"}}))
		require.NoError(t, s.Set(ctx, "nested", "n2", record{Data: map[string]any{"invitationId": "inv-2"}}))

		docs, err := s.QueryByField(ctx, "nested", "data.invitationId", "inv-2")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "n2", docs[0].ID)
	})

	t.Run("query by non string field", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "counted", "c1", record{Count: 3}))
		docs, err := s.QueryByField(ctx, "counted", "count", 3)
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "items", "gone", record{Name: "x"}))
		require.NoError(t, s.Delete(ctx, "items", "gone"))
		require.NoError(t, s.Delete(ctx, "items", "gone"))
		var r record
		assert.ErrorIs(t, s.Get(ctx, "items", "gone", &r), ErrNotFound)
	})

	t.Run("list empty collection", func(t *testing.T) {
		docs, err := s.List(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("push ids are unique and ordered", func(t *testing.T) {
		a := s.PushID("items")
		b := s.PushID("items")
		assert.NotEqual(t, a, b)
		assert.Less(t, a, b)
	})
}
