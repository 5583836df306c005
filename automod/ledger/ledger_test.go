package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/util/cliutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLedger(t *testing.T) *Ledger {
	db, err := cliutil.SetupDatabase("sqlite://"+filepath.Join(t.TempDir(), "ledger.sqlite"), 1)
	require.NoError(t, err)
	l := NewLedger(db)
	require.NoError(t, l.Migrate())
	return l
}

func warning(group chat.GroupID, user chat.UserID, reason string) *Warning {
	return &Warning{
		GroupID:  group,
		UserID:   user,
		Reason:   reason,
		IssuedBy: 1,
		IssuedAt: time.Now(),
	}
}

func TestWarnCountAndClear(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	l := testLedger(t)

	atLimit := func(count int64) bool { return count >= 3 }

	for i := 1; i <= 2; i++ {
		count, cleared, err := l.Warn(ctx, warning(-100, 7, fmt.Sprintf("reason %d", i)), atLimit)
		assert.NoError(err)
		assert.Equal(int64(i), count)
		assert.False(cleared)
	}
	list, err := l.ListWarnings(ctx, -100, 7)
	assert.NoError(err)
	assert.Len(list, 2)
	assert.Equal("reason 1", list[0].Reason)

	count, cleared, err := l.Warn(ctx, warning(-100, 7, "reason 3"), atLimit)
	assert.NoError(err)
	assert.Equal(int64(3), count)
	assert.True(cleared)

	count, err = l.CountWarnings(ctx, -100, 7)
	assert.NoError(err)
	assert.Equal(int64(0), count)
}

func TestWarnInvalid(t *testing.T) {
	assert := assert.New(t)
	l := testLedger(t)

	_, _, err := l.Warn(context.Background(), warning(-100, 0, "nobody"), nil)
	assert.ErrorIs(err, chat.ErrInvalidInput)
}

func TestPairsIndependent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	l := testLedger(t)

	_, _, err := l.Warn(ctx, warning(-100, 7, "a"), nil)
	assert.NoError(err)
	_, _, err = l.Warn(ctx, warning(-100, 8, "b"), nil)
	assert.NoError(err)
	_, _, err = l.Warn(ctx, warning(-200, 7, "c"), nil)
	assert.NoError(err)

	n, err := l.ClearWarnings(ctx, -100, 7)
	assert.NoError(err)
	assert.Equal(int64(1), n)

	count, err := l.CountWarnings(ctx, -100, 8)
	assert.NoError(err)
	assert.Equal(int64(1), count)
	count, err = l.CountWarnings(ctx, -200, 7)
	assert.NoError(err)
	assert.Equal(int64(1), count)

	// clearing an empty pair is fine
	n, err = l.ClearWarnings(ctx, -100, 7)
	assert.NoError(err)
	assert.Equal(int64(0), n)
}

func TestTopWarned(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	l := testLedger(t)

	for user, n := range map[chat.UserID]int{10: 1, 11: 3, 12: 2, 13: 2} {
		for i := 0; i < n; i++ {
			_, _, err := l.Warn(ctx, warning(-100, user, "x"), nil)
			assert.NoError(err)
		}
	}
	_, _, err := l.Warn(ctx, warning(-999, 10, "other group"), nil)
	assert.NoError(err)

	top, err := l.TopWarned(ctx, -100, 3)
	assert.NoError(err)
	assert.Equal([]WarnCount{
		{UserID: 11, Count: 3},
		{UserID: 12, Count: 2},
		{UserID: 13, Count: 2},
	}, top)
}

func TestActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	l := testLedger(t)

	for _, a := range []ModerationAction{
		{GroupID: -100, UserID: 7, Kind: chat.ActionMute, DurationSeconds: 300, Reason: "Flooding chat"},
		{GroupID: -100, UserID: 8, Kind: chat.ActionBan, Reason: "Reached warning limit: spam"},
		{GroupID: -100, UserID: 7, Kind: chat.ActionUnmute},
		{GroupID: -200, UserID: 7, Kind: chat.ActionKick},
	} {
		a.IssuedAt = time.Now()
		assert.NoError(l.RecordAction(ctx, &a))
		assert.NotZero(a.ID)
	}

	all, err := l.ListActions(ctx, -100, 0, 10)
	assert.NoError(err)
	assert.Len(all, 3)
	assert.Equal(chat.ActionUnmute, all[0].Kind)

	mine, err := l.ListActions(ctx, -100, 7, 10)
	assert.NoError(err)
	assert.Len(mine, 2)
	assert.Equal(int64(300), mine[1].DurationSeconds)

	limited, err := l.ListActions(ctx, -100, 0, 1)
	assert.NoError(err)
	assert.Len(limited, 1)
}

func TestWarnConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	l := testLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := l.Warn(ctx, warning(-100, 7, "race"), nil)
			assert.NoError(err)
		}()
	}
	wg.Wait()

	count, err := l.CountWarnings(ctx, -100, 7)
	assert.NoError(err)
	assert.Equal(int64(10), count)
}
