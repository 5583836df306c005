package engine

import (
	"sync"

	"github.com/groupmeg/groupmod/automod/chat"

	"github.com/puzpuzpuz/xsync/v4"
)

type refLock struct {
	mu   sync.Mutex
	refs int
}

// Per-key mutexes, created on demand and dropped once nobody holds or waits on them.
type KeyLocks struct {
	locks *xsync.Map[string, *refLock]
}

func NewKeyLocks() *KeyLocks {
	return &KeyLocks{
		locks: xsync.NewMap[string, *refLock](),
	}
}

// Blocks until the lock for key is held. The returned func releases it, and must be called exactly once.
func (kl *KeyLocks) Lock(key string) func() {
	var l *refLock
	kl.locks.Compute(key, func(old *refLock, loaded bool) (*refLock, xsync.ComputeOp) {
		if !loaded {
			old = &refLock{}
		}
		old.refs++
		l = old
		return old, xsync.UpdateOp
	})
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		kl.locks.Compute(key, func(old *refLock, loaded bool) (*refLock, xsync.ComputeOp) {
			if !loaded {
				return old, xsync.CancelOp
			}
			old.refs--
			if old.refs <= 0 {
				return old, xsync.DeleteOp
			}
			return old, xsync.UpdateOp
		})
	}
}

// Number of keys currently held or waited on.
func (kl *KeyLocks) Size() int {
	return kl.locks.Size()
}

func pairKey(group chat.GroupID, user chat.UserID) string {
	return group.String() + "/" + user.String()
}

// Serializes everything touching one user's state in one group.
func (kl *KeyLocks) LockPair(group chat.GroupID, user chat.UserID) func() {
	return kl.Lock(pairKey(group, user))
}
