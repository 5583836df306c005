package policy

import (
	"context"
	"sync"

	"github.com/groupmeg/groupmod/automod/chat"
)

// Source of per-group policy. Groups with nothing configured get Default().
type PolicyStore interface {
	GetPolicy(ctx context.Context, group chat.GroupID) (GroupPolicy, error)
	SetPolicy(ctx context.Context, group chat.GroupID, p GroupPolicy) error
}

type MemPolicyStore struct {
	// policy for groups with no explicit entry
	Fallback GroupPolicy

	mu     sync.RWMutex
	groups map[chat.GroupID]GroupPolicy
}

var _ PolicyStore = (*MemPolicyStore)(nil)

func NewMemPolicyStore() *MemPolicyStore {
	return &MemPolicyStore{
		Fallback: Default(),
		groups:   make(map[chat.GroupID]GroupPolicy),
	}
}

func (s *MemPolicyStore) GetPolicy(ctx context.Context, group chat.GroupID) (GroupPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.groups[group]
	if !ok {
		return s.Fallback, nil
	}
	return p, nil
}

func (s *MemPolicyStore) SetPolicy(ctx context.Context, group chat.GroupID, p GroupPolicy) error {
	p, err := p.Normalize()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group] = p
	return nil
}
