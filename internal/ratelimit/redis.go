package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// redisWindowStore keeps each identity keys attempts in a Redis
// sorted set, scored by unix-nano timestamp. The prune/count/insert/
// expire sequence runs inside a MULTI/EXEC transaction so the whole
// slide is atomic against every other worker process.
type redisWindowStore struct {
	rdb goredis.UniversalClient
}

var _ WindowStore = (*redisWindowStore)(nil)

func NewRedisWindowStore(client goredis.UniversalClient) (*redisWindowStore, error) {
	if client == nil {
		return nil, fmt.Errorf("ratelimit: nil redis client")
	}

	return &redisWindowStore{rdb: client}, nil
}

func (store *redisWindowStore) Slide(ctx context.Context, key string, cutoff time.Time, now time.Time, expiry time.Duration) (int64, error) {
	var cardCmd *goredis.IntCmd

	// Member values carry a random suffix so two attempts landing on
	// the same nanosecond are still distinct set members.
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	_, err := store.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff.UnixNano(), 10))
		cardCmd = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, goredis.Z{Score: float64(now.UnixNano()), Member: member})
		pipe.Expire(ctx, key, expiry)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return cardCmd.Val(), nil
}

func (store *redisWindowStore) Reset(ctx context.Context, key string) error {
	return store.rdb.Del(ctx, key).Err()
}
