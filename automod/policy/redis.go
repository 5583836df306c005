package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

var redisPolicyHash = "policy/groups"

// PolicyStore shared between daemon instances. Policies are persisted as JSON in a single redis hash; reads go through a redis+local two-level cache.
type RedisPolicyStore struct {
	Client   *redis.Client
	Data     *cache.Cache
	TTL      time.Duration
	Fallback GroupPolicy
}

var _ PolicyStore = (*RedisPolicyStore)(nil)

func NewRedisPolicyStore(redisURL string, ttl time.Duration) (*RedisPolicyStore, error) {
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
	return NewRedisPolicyStoreFromClient(rdb, ttl), nil
}

func NewRedisPolicyStoreFromClient(rdb *redis.Client, ttl time.Duration) *RedisPolicyStore {
	return &RedisPolicyStore{
		Client: rdb,
		Data: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(10_000, ttl),
		}),
		TTL:      ttl,
		Fallback: Default(),
	}
}

func redisPolicyCacheKey(group chat.GroupID) string {
	return "policy/cache/" + group.String()
}

func (s *RedisPolicyStore) GetPolicy(ctx context.Context, group chat.GroupID) (GroupPolicy, error) {
	var p GroupPolicy
	err := s.Data.Once(&cache.Item{
		Ctx:   ctx,
		Key:   redisPolicyCacheKey(group),
		Value: &p,
		TTL:   s.TTL,
		Do: func(item *cache.Item) (any, error) {
			return s.load(item.Context(), group)
		},
	})
	if err != nil {
		return p, fmt.Errorf("fetching policy for group %s: %w", group, err)
	}
	return p, nil
}

func (s *RedisPolicyStore) load(ctx context.Context, group chat.GroupID) (GroupPolicy, error) {
	raw, err := s.Client.HGet(ctx, redisPolicyHash, group.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.Fallback, nil
	}
	if err != nil {
		return GroupPolicy{}, err
	}
	var p GroupPolicy
	if err := json.Unmarshal(raw, &p); err != nil {
		return GroupPolicy{}, err
	}
	return p, nil
}

func (s *RedisPolicyStore) SetPolicy(ctx context.Context, group chat.GroupID, p GroupPolicy) error {
	p, err := p.Normalize()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.Client.HSet(ctx, redisPolicyHash, group.String(), raw).Err(); err != nil {
		return fmt.Errorf("storing policy for group %s: %w", group, err)
	}
	err = s.Data.Delete(ctx, redisPolicyCacheKey(group))
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return err
	}
	return nil
}

// Stores each policy for a group that has none yet; policies already in redis are left alone.
func (s *RedisPolicyStore) Seed(ctx context.Context, groups map[chat.GroupID]GroupPolicy) (int, error) {
	added := 0
	for group, p := range groups {
		p, err := p.Normalize()
		if err != nil {
			return added, fmt.Errorf("policy for group %s: %w", group, err)
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return added, err
		}
		ok, err := s.Client.HSetNX(ctx, redisPolicyHash, group.String(), raw).Result()
		if err != nil {
			return added, fmt.Errorf("storing policy for group %s: %w", group, err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}
