package floodstore

import (
	"context"
	"fmt"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
)

const (
	// rolling horizon of the per-user message window
	DefaultWindow = 10 * time.Second
	// number of messages allowed inside the window; one more trips the check
	DefaultLimit = 5
)

// Tracks a sliding window of recent message timestamps per (group, user) pair.
type FloodStore interface {
	// Records an event at "now", prunes anything older than the window, and reports whether the pair is now over the limit.
	RecordEvent(ctx context.Context, group chat.GroupID, user chat.UserID, now time.Time) (bool, error)
}

func windowKey(group chat.GroupID, user chat.UserID) string {
	return fmt.Sprintf("%s/%s", group, user)
}

// returns the subset of stamps strictly newer than cutoff, reusing the backing array
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	out := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			out = append(out, ts)
		}
	}
	return out
}
