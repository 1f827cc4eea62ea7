package goSession

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goSession/tokenstore"
)

// OpenStore opens the backend named by cfg. The returned close func releases
// what OpenStore opened and is never nil.
func OpenStore(ctx context.Context, cfg StoreConfig) (tokenstore.Store, func() error, error) {
	nop := func() error { return nil }

	switch cfg.Backend {
	case "", StoreMemory:
		return tokenstore.NewMemory(), nop, nil

	case StoreBolt:
		s, err := tokenstore.OpenBolt(cfg.Path, cfg.Namespace)
		if err != nil {
			return nil, nop, err
		}
		return s, s.Close, nil

	case StoreRedis:
		client, err := tokenstore.ConnectRedis(ctx, tokenstore.RedisConnectConfig{
			URL:           cfg.RedisURL,
			RetryAttempts: cfg.ConnectAttempts,
			RetryInterval: cfg.ConnectInterval,
		})
		if err != nil {
			return nil, nop, err
		}
		prefix := cfg.RedisPrefix
		if cfg.Namespace != "" {
			prefix += ":" + cfg.Namespace
		}
		return tokenstore.NewRedis(client, prefix), client.Close, nil

	default:
		return nil, nop, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}
