package floodstore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"

	"github.com/redis/go-redis/v9"
)

var redisFloodPrefix string = "flood/"

// FloodStore backed by one redis sorted set per (group, user), scored by unix milliseconds. Lets several daemon instances share flood state.
type RedisFloodStore struct {
	Client *redis.Client
	Window time.Duration
	Limit  int

	// disambiguates members for events in the same millisecond, across instances
	instance string
	seq      atomic.Uint64
}

func NewRedisFloodStore(redisURL string, window time.Duration, limit int) (*RedisFloodStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return NewRedisFloodStoreFromClient(rdb, window, limit), nil
}

func NewRedisFloodStoreFromClient(rdb *redis.Client, window time.Duration, limit int) *RedisFloodStore {
	return &RedisFloodStore{
		Client:   rdb,
		Window:   window,
		Limit:    limit,
		instance: strconv.FormatUint(rand.Uint64(), 36),
	}
}

func (s *RedisFloodStore) RecordEvent(ctx context.Context, group chat.GroupID, user chat.UserID, now time.Time) (bool, error) {
	key := redisFloodPrefix + windowKey(group, user)
	score := now.UnixMilli()
	cutoff := now.Add(-s.Window).UnixMilli()
	member := fmt.Sprintf("%d-%s-%d", score, s.instance, s.seq.Add(1))

	// add, prune, and count in a single MULTI round-trip
	var card *redis.IntCmd
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		card = pipe.ZCard(ctx, key)
		pipe.PExpire(ctx, key, s.Window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("recording flood event: %w", err)
	}
	return card.Val() > int64(s.Limit), nil
}
