package policy

import (
	"context"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Read-through cache in front of a slower PolicyStore. Writes go to the backing store and invalidate the cached entry.
type CachedStore struct {
	Inner PolicyStore
	Data  *expirable.LRU[chat.GroupID, GroupPolicy]
}

var _ PolicyStore = (*CachedStore)(nil)

func NewCachedStore(inner PolicyStore, capacity int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Inner: inner,
		Data:  expirable.NewLRU[chat.GroupID, GroupPolicy](capacity, nil, ttl),
	}
}

func (s *CachedStore) GetPolicy(ctx context.Context, group chat.GroupID) (GroupPolicy, error) {
	if p, ok := s.Data.Get(group); ok {
		return p, nil
	}
	p, err := s.Inner.GetPolicy(ctx, group)
	if err != nil {
		return p, err
	}
	s.Data.Add(group, p)
	return p, nil
}

func (s *CachedStore) SetPolicy(ctx context.Context, group chat.GroupID, p GroupPolicy) error {
	defer s.Data.Remove(group)
	return s.Inner.SetPolicy(ctx, group, p)
}
