package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

const scanBatchSize = 256

// Redis implements Store on top of a Redis keyspace. Every name is stored under
// "<prefix>:<name>" so ClearAll only touches this store's entries.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis wraps an existing client. prefix defaults to "gs".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "gs"
	}
	return &Redis{redis: client, prefix: prefix}
}

// RedisConnectConfig controls ConnectRedis.
type RedisConnectConfig struct {
	URL           string
	RetryAttempts uint64
	RetryInterval time.Duration
}

// ConnectRedis parses url, then pings the server with exponential backoff until it
// answers or the attempts are exhausted.
func ConnectRedis(ctx context.Context, cfg RedisConnectConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("redis url is empty")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}

	client := redis.NewClient(opts)
	backoff := retry.WithMaxRetries(cfg.RetryAttempts, retry.NewExponential(cfg.RetryInterval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return client, nil
}

func (s *Redis) key(name string) string {
	return s.prefix + ":" + name
}

func (s *Redis) Get(ctx context.Context, name string) (string, bool, error) {
	v, err := s.redis.Get(ctx, s.key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, true, nil
}

func (s *Redis) Set(ctx context.Context, name, value string) error {
	if err := s.redis.Set(ctx, s.key(name), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SetMany writes all entries inside MULTI/EXEC.
func (s *Redis) SetMany(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) Remove(ctx context.Context, name string) error {
	if err := s.redis.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) ClearAll(ctx context.Context) error {
	keys, err := s.scan(ctx, s.prefix+":*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.scan(ctx, s.key(escapeGlob(prefix))+"*")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, s.prefix+":"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Redis) scan(ctx context.Context, match string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	// SCAN may return a key more than once.
	seen := make(map[string]struct{})
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
