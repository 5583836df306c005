package floodstore

import (
	"context"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"

	"github.com/puzpuzpuz/xsync/v4"
)

type window struct {
	stamps   []time.Time
	lastSeen time.Time
}

// In-process FloodStore. All mutation of a window happens inside the map's per-key Compute, so concurrent events for the same pair are serialized.
type MemFloodStore struct {
	Window time.Duration
	Limit  int
	// windows idle for longer than this are dropped by Sweep
	IdleTTL time.Duration

	windows *xsync.Map[string, *window]
}

func NewMemFloodStore(horizon time.Duration, limit int) *MemFloodStore {
	return &MemFloodStore{
		Window:  horizon,
		Limit:   limit,
		IdleTTL: 10 * time.Minute,
		windows: xsync.NewMap[string, *window](),
	}
}

func (s *MemFloodStore) RecordEvent(ctx context.Context, group chat.GroupID, user chat.UserID, now time.Time) (bool, error) {
	cutoff := now.Add(-s.Window)
	var count int
	s.windows.Compute(windowKey(group, user), func(w *window, loaded bool) (*window, xsync.ComputeOp) {
		if !loaded {
			w = &window{stamps: make([]time.Time, 0, s.Limit+1)}
		}
		w.stamps = prune(append(w.stamps, now), cutoff)
		w.lastSeen = now
		count = len(w.stamps)
		return w, xsync.UpdateOp
	})
	return count > s.Limit, nil
}

// Drops windows which have not seen an event within IdleTTL. Returns the number removed.
func (s *MemFloodStore) Sweep(now time.Time) int {
	removed := 0
	s.windows.Range(func(key string, _ *window) bool {
		s.windows.Compute(key, func(w *window, loaded bool) (*window, xsync.ComputeOp) {
			if !loaded || now.Sub(w.lastSeen) < s.IdleTTL {
				return w, xsync.CancelOp
			}
			removed++
			return w, xsync.DeleteOp
		})
		return true
	})
	return removed
}

// Number of tracked (group, user) windows.
func (s *MemFloodStore) Size() int {
	return s.windows.Size()
}

// Periodically sweeps idle windows until the context is cancelled.
func (s *MemFloodStore) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.Sweep(t)
		}
	}
}
