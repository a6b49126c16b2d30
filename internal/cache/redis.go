package cache

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// redisProvider backs the content cache with Redis; this is the
// production provider, shared between all worker processes so that a
// fetch completed by one worker is visible to every other.
type redisProvider struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ Provider = (*redisProvider)(nil)

var ErrNilRedisClient = errors.New("cache: nil redis client")

// NewRedisProvider wraps an existing redis client. Set closeClient
// only when this provider exclusively owns the client.
func NewRedisProvider(client goredis.UniversalClient, closeClient bool) (*redisProvider, error) {
	if client == nil {
		return nil, ErrNilRedisClient
	}

	return &redisProvider{rdb: client, closeClient: closeClient}, nil
}

func (p *redisProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

func (p *redisProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 0
	}

	return p.rdb.Set(ctx, key, value, ttl).Err()
}

func (p *redisProvider) Del(ctx context.Context, key string) (bool, error) {
	removed, err := p.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return removed > 0, nil
}

func (p *redisProvider) Exists(ctx context.Context, key string) (bool, error) {
	count, err := p.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (p *redisProvider) Close() error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}

	return nil
}
