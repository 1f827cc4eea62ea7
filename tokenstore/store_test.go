package tokenstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(t *testing.T) Store { return NewMemory() }},
		{name: "bolt", open: func(t *testing.T) Store {
			s, err := OpenBolt(filepath.Join(t.TempDir(), "tokens.db"), "")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{name: "redis", open: func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedis(client, "test")
		}},
	}
}

func TestStoreGetMissingReturnsNotOK(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			v, ok, err := s.Get(context.Background(), AccessTokenKey)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, v)
		})
	}
}

func TestStoreSetGetRemove(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			require.NoError(t, s.Set(ctx, AccessTokenKey, "a1"))

			v, ok, err := s.Get(ctx, AccessTokenKey)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "a1", v)

			require.NoError(t, s.Remove(ctx, AccessTokenKey))
			_, ok, err = s.Get(ctx, AccessTokenKey)
			require.NoError(t, err)
			assert.False(t, ok)

			// absent names are not an error
			require.NoError(t, s.Remove(ctx, AccessTokenKey))
		})
	}
}

func TestStoreSetManyWritesPair(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			require.NoError(t, s.SetMany(ctx, map[string]string{
				AccessTokenKey:  "access",
				RefreshTokenKey: "refresh",
			}))

			a, ok, err := s.Get(ctx, AccessTokenKey)
			require.NoError(t, err)
			require.True(t, ok)
			r, ok, err := s.Get(ctx, RefreshTokenKey)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "access", a)
			assert.Equal(t, "refresh", r)
		})
	}
}

func TestStoreClearAllAndList(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			require.NoError(t, s.SetMany(ctx, map[string]string{
				"idem.transfer.me.b": "k2",
				"idem.transfer.me.a": "k1",
				"idem.account.me.c":  "k3",
				AccessTokenKey:       "x",
			}))

			names, err := s.List(ctx, "idem.transfer.")
			require.NoError(t, err)
			assert.Equal(t, []string{"idem.transfer.me.a", "idem.transfer.me.b"}, names)

			require.NoError(t, s.ClearAll(ctx))
			names, err = s.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, names)

			// clearing an empty store is a no-op
			require.NoError(t, s.ClearAll(ctx))
		})
	}
}

func TestStoreListTreatsGlobCharactersLiterally(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			require.NoError(t, s.Set(ctx, "idem.*.x", "1"))
			require.NoError(t, s.Set(ctx, "idem.a.x", "2"))

			names, err := s.List(ctx, "idem.*")
			require.NoError(t, err)
			assert.Equal(t, []string{"idem.*.x"}, names)
		})
	}
}

func TestStoreConcurrentWritesLastWriterWins(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = s.Set(ctx, "shared", "v")
				}()
			}
			wg.Wait()
			v, ok, err := s.Get(ctx, "shared")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v", v)
		})
	}
}

func TestRemoveMany(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.SetMany(ctx, map[string]string{AccessTokenKey: "a", RefreshTokenKey: "r", "other": "o"}))
	require.NoError(t, RemoveMany(ctx, s, AccessTokenKey, RefreshTokenKey))

	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, names)
}

func TestBoltSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.db")

	s, err := OpenBolt(path, "alice")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, RefreshTokenKey, "r1"))
	require.NoError(t, s.Close())

	s, err = OpenBolt(path, "alice")
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(ctx, RefreshTokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r1", v)

	other := NewBolt(s.db, "bob")
	_, ok, err = other.Get(ctx, RefreshTokenKey)
	require.NoError(t, err)
	assert.False(t, ok, "namespaces must not share entries")
}

func TestBoltClosedReturnsErrClosed(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "tokens.db"), "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Set(context.Background(), "k", "v")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRedisClearAllKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, client.Set(ctx, "foreign", "1", 0).Err())
	s := NewRedis(client, "gs")
	require.NoError(t, s.Set(ctx, AccessTokenKey, "a"))
	require.NoError(t, s.ClearAll(ctx))

	assert.True(t, mr.Exists("foreign"))
	assert.False(t, mr.Exists("gs:"+AccessTokenKey))
}

func TestRedisUnavailableIsWrapped(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewRedis(client, "")
	mr.Close()

	_, _, err := s.Get(context.Background(), AccessTokenKey)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := ConnectRedis(ctx, RedisConnectConfig{URL: "redis://" + mr.Addr(), RetryAttempts: 2})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestConnectRedisRejectsBadURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), RedisConnectConfig{URL: "http://nope"})
	assert.Error(t, err)

	_, err = ConnectRedis(context.Background(), RedisConnectConfig{})
	assert.Error(t, err)
}

func TestConnectRedisGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := ConnectRedis(ctx, RedisConnectConfig{
		URL:           "redis://127.0.0.1:1/0",
		RetryAttempts: 1,
		RetryInterval: 10 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrUnavailable)
}
