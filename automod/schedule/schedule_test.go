package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/util/cliutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDelay(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		raw string
		out time.Duration
		ok  bool
	}{
		{raw: "30s", out: 30 * time.Second, ok: true},
		{raw: "10m", out: 600 * time.Second, ok: true},
		{raw: "2h", out: 2 * time.Hour, ok: true},
		{raw: "1d", out: 86400 * time.Second, ok: true},
		{raw: "5M", out: 5 * time.Minute, ok: true},
		{raw: "0s"},
		{raw: ""},
		{raw: "10"},
		{raw: "m"},
		{raw: "-5m"},
		{raw: "1.5h"},
		{raw: "10w"},
		{raw: "10 m"},
		{raw: "99999999999999999999s"},
		{raw: "9999999999999d"},
	}

	for _, fix := range fixtures {
		d, err := ParseDelay(fix.raw)
		if fix.ok {
			assert.NoError(err, fix.raw)
			assert.Equal(fix.out, d, fix.raw)
		} else {
			assert.ErrorIs(err, chat.ErrInvalidInput, fix.raw)
		}
	}
}

func TestFormatDelay(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("45s", FormatDelay(45*time.Second))
	assert.Equal("10m", FormatDelay(10*time.Minute))
	assert.Equal("3h", FormatDelay(3*time.Hour+20*time.Minute))
	assert.Equal("2d", FormatDelay(48*time.Hour))
}

func testStore(t *testing.T, dbPath string) *GormPostStore {
	db, err := cliutil.SetupDatabase("sqlite://"+dbPath, 1)
	require.NoError(t, err)
	s := NewGormPostStore(db)
	require.NoError(t, s.Migrate())
	return s
}

func TestScheduleTickRoundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mp := chat.NewMockPlatform()
	d := NewDispatcher(mp, nil, nil)

	id, err := d.Schedule(ctx, "chan1", "hi", "10m", start)
	assert.NoError(err)
	assert.Equal(int64(0), id)
	pending := d.Pending()
	assert.Len(pending, 1)
	assert.Equal(start.Add(600*time.Second), pending[0].FireAt)

	assert.Equal(0, d.Tick(ctx, start.Add(599*time.Second)))
	assert.Empty(mp.CallsTo("Send"))

	assert.Equal(1, d.Tick(ctx, start.Add(601*time.Second)))
	sends := mp.CallsTo("Send")
	assert.Len(sends, 1)
	assert.Equal("chan1", sends[0].Destination)
	assert.Equal("hi", sends[0].Body)
	assert.Empty(d.Pending())

	// not redelivered
	assert.Equal(0, d.Tick(ctx, start.Add(time.Hour)))
	assert.Len(mp.CallsTo("Send"), 1)
}

func TestTickExactlyAtFireTime(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	d := NewDispatcher(chat.NewMockPlatform(), nil, nil)
	_, err := d.Schedule(ctx, "chan1", "hi", "30s", start)
	assert.NoError(err)
	assert.Equal(1, d.Tick(ctx, start.Add(30*time.Second)))
}

func TestTickFailedDeliveryNotRetried(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mp := chat.NewMockPlatform()
	mp.SetError("Send", errors.New("chat not found"))
	d := NewDispatcher(mp, nil, nil)

	_, err := d.Schedule(ctx, "chan1", "one", "1s", start)
	assert.NoError(err)
	_, err = d.Schedule(ctx, "chan2", "two", "1s", start)
	assert.NoError(err)
	_, err = d.Schedule(ctx, "chan3", "later", "1h", start)
	assert.NoError(err)

	assert.Equal(0, d.Tick(ctx, start.Add(time.Minute)))
	assert.Len(mp.CallsTo("Send"), 2)
	assert.Len(d.Pending(), 1)

	mp.SetError("Send", nil)
	assert.Equal(0, d.Tick(ctx, start.Add(2*time.Minute)))
	assert.Len(mp.CallsTo("Send"), 2)
}

func TestScheduleInvalid(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	d := NewDispatcher(chat.NewMockPlatform(), nil, nil)

	_, err := d.Schedule(ctx, "chan1", "hi", "soon", time.Now())
	assert.ErrorIs(err, chat.ErrInvalidInput)
	_, err = d.Schedule(ctx, "", "hi", "1m", time.Now())
	assert.ErrorIs(err, chat.ErrInvalidInput)
	_, err = d.Schedule(ctx, "chan1", "  ", "1m", time.Now())
	assert.ErrorIs(err, chat.ErrInvalidInput)

	// failures do not consume ids
	id, err := d.Schedule(ctx, "chan1", "hi", "1m", time.Now())
	assert.NoError(err)
	assert.Equal(int64(0), id)
}

func TestCancel(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mp := chat.NewMockPlatform()
	d := NewDispatcher(mp, nil, nil)
	id, err := d.Schedule(ctx, "chan1", "hi", "1m", start)
	assert.NoError(err)

	assert.NoError(d.Cancel(ctx, id))
	assert.NoError(d.Cancel(ctx, id))
	assert.NoError(d.Cancel(ctx, 12345))
	assert.Empty(d.Pending())

	assert.Equal(0, d.Tick(ctx, start.Add(time.Hour)))
	assert.Empty(mp.CallsTo("Send"))

	// ids are not reused after removal
	next, err := d.Schedule(ctx, "chan1", "again", "1m", start)
	assert.NoError(err)
	assert.Equal(id+1, next)
}

func TestDispatcherPersistence(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	dbPath := filepath.Join(t.TempDir(), "posts.sqlite")

	mp := chat.NewMockPlatform()
	d := NewDispatcher(mp, testStore(t, dbPath), nil)
	assert.NoError(d.Load(ctx))
	for _, delay := range []string{"1m", "2m", "3m"} {
		_, err := d.Schedule(ctx, "chan1", "post "+delay, delay, start)
		assert.NoError(err)
	}
	assert.NoError(d.Cancel(ctx, 2))
	assert.Equal(1, d.Tick(ctx, start.Add(90*time.Second)))

	// a fresh dispatcher on the same database sees only post 1, and continues ids after the highest ever used
	restarted := NewDispatcher(mp, testStore(t, dbPath), nil)
	assert.NoError(restarted.Load(ctx))
	pending := restarted.Pending()
	assert.Len(pending, 1)
	assert.Equal(int64(1), pending[0].ID)
	assert.Equal("post 2m", pending[0].Body)
	assert.True(pending[0].FireAt.Equal(start.Add(2*time.Minute)))

	id, err := restarted.Schedule(ctx, "chan1", "new", "1m", start)
	assert.NoError(err)
	assert.Equal(int64(3), id)
}

type flakyStore struct {
	PostStore
	mu      sync.Mutex
	failing bool
}

func (s *flakyStore) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

func (s *flakyStore) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return errors.New("database is locked")
	}
	return s.PostStore.Remove(ctx, id)
}

func TestTickHoldsBackUnremovedPost(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	dbPath := filepath.Join(t.TempDir(), "posts.sqlite")

	mp := chat.NewMockPlatform()
	store := &flakyStore{PostStore: testStore(t, dbPath)}
	d := NewDispatcher(mp, store, nil)
	assert.NoError(d.Load(ctx))
	_, err := d.Schedule(ctx, "chan1", "hello", "1m", start)
	assert.NoError(err)

	store.setFailing(true)
	assert.Equal(0, d.Tick(ctx, start.Add(2*time.Minute)))
	assert.Empty(mp.CallsTo("Send"))
	assert.Len(d.Pending(), 1)

	store.setFailing(false)
	assert.Equal(1, d.Tick(ctx, start.Add(3*time.Minute)))
	assert.Len(mp.CallsTo("Send"), 1)
	assert.Empty(d.Pending())

	// delivered posts are gone from the store too
	restarted := NewDispatcher(mp, testStore(t, dbPath), nil)
	assert.NoError(restarted.Load(ctx))
	assert.Empty(restarted.Pending())
}

func TestCrossPost(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mp := chat.NewMockPlatform()
	d := NewDispatcher(mp, nil, nil)
	assert.NoError(d.CrossPost(ctx, "news", []string{"@one", "@two"}))
	assert.Len(mp.CallsTo("Send"), 2)

	assert.ErrorIs(d.CrossPost(ctx, "news", nil), chat.ErrInvalidInput)
	assert.ErrorIs(d.CrossPost(ctx, "", []string{"@one"}), chat.ErrInvalidInput)

	cause := errors.New("bot was kicked")
	mp.SetError("Send", cause)
	err := d.CrossPost(ctx, "news", []string{"@one", "@two"})
	assert.ErrorIs(err, cause)
	assert.Len(mp.CallsTo("Send"), 4)
}

type countingSender struct {
	mu    sync.Mutex
	sends int
}

func (s *countingSender) Send(ctx context.Context, destination, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	return nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends
}

func TestRunner(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	start := time.Now()

	sender := &countingSender{}
	d := NewDispatcher(sender, nil, nil)
	_, err := d.Schedule(ctx, "chan1", "hi", "1s", start.Add(-time.Hour))
	assert.NoError(err)

	r := NewRunner(d, chat.SystemClock, time.Second)
	assert.NoError(r.Start())
	assert.Eventually(func() bool { return sender.count() == 1 }, 5*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.NoError(r.Stop(stopCtx))
	assert.Empty(d.Pending())
}
