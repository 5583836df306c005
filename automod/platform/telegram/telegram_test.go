package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 42,
		From:      &tgbotapi.User{ID: 7, FirstName: "Sam"},
		Chat:      &tgbotapi.Chat{ID: -1001234, Type: "supergroup"},
		Date:      1714564800,
		Text:      text,
	}
}

func TestConvertUpdate(t *testing.T) {
	assert := assert.New(t)

	msg, ok := ConvertUpdate(tgbotapi.Update{Message: groupMessage("hello")})
	require.True(t, ok)
	assert.Equal(chat.GroupID(-1001234), msg.Group())
	assert.Equal(int64(42), msg.Ref.MessageID)
	assert.Equal(chat.UserID(7), msg.Sender)
	assert.Equal("hello", msg.Text)
	assert.Equal(time.Unix(1714564800, 0), msg.SentAt)
	assert.Nil(msg.ReplyTo)
	assert.Empty(msg.Command)

	// captions stand in for text
	m := groupMessage("")
	m.Caption = "photo caption"
	msg, ok = ConvertUpdate(tgbotapi.Update{Message: m})
	require.True(t, ok)
	assert.Equal("photo caption", msg.Text)

	// replies carry the target user
	m = groupMessage("/warn being rude")
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}}
	m.ReplyToMessage = &tgbotapi.Message{From: &tgbotapi.User{ID: 99}, Text: "original"}
	msg, ok = ConvertUpdate(tgbotapi.Update{Message: m})
	require.True(t, ok)
	require.NotNil(t, msg.ReplyTo)
	assert.Equal(chat.UserID(99), *msg.ReplyTo)
	assert.Equal("original", msg.ReplyText)
	assert.Equal("warn", msg.Command)
	assert.Equal("being rude", msg.CommandArgs)

	// edits are moderated too, but never treated as commands
	m = groupMessage("/ban")
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 4}}
	msg, ok = ConvertUpdate(tgbotapi.Update{EditedMessage: m})
	require.True(t, ok)
	assert.Empty(msg.Command)

	// skipped: private chats, bots, updates without a message
	m = groupMessage("hi")
	m.Chat.Type = "private"
	_, ok = ConvertUpdate(tgbotapi.Update{Message: m})
	assert.False(ok)
	m = groupMessage("hi")
	m.From.IsBot = true
	_, ok = ConvertUpdate(tgbotapi.Update{Message: m})
	assert.False(ok)
	_, ok = ConvertUpdate(tgbotapi.Update{})
	assert.False(ok)
}

func TestTranslateError(t *testing.T) {
	assert := assert.New(t)

	err := translateError(&tgbotapi.Error{Code: 400, Message: "Bad Request: user not found"})
	assert.ErrorIs(err, chat.ErrNotFound)

	err = translateError(&tgbotapi.Error{Code: 400, Message: "Bad Request: PARTICIPANT_ID_INVALID"})
	assert.ErrorIs(err, chat.ErrNotFound)

	err = translateError(&tgbotapi.Error{Code: 400, Message: "Bad Request: not enough rights to restrict/unrestrict chat member"})
	assert.NotErrorIs(err, chat.ErrNotFound)
	assert.Contains(err.Error(), "not enough rights")

	plain := errors.New("connection reset")
	assert.Equal(plain, translateError(plain))
}

func TestPerChatLimit(t *testing.T) {
	assert := assert.New(t)

	l := newLimiters()
	for i := 0; i < chatMessagesPerMinute; i++ {
		assert.True(l.allowChat("-100"), "message %d", i+1)
	}
	assert.False(l.allowChat("-100"))
	assert.True(l.allowChat("-200"))
}

func TestDryRunClient(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c, err := NewClient(Config{}, nil)
	require.NoError(t, err)
	assert.True(c.DryRun())

	assert.NoError(c.Restrict(ctx, -100, 7, time.Now().Add(time.Minute)))
	assert.NoError(c.Unrestrict(ctx, -100, 7))
	assert.NoError(c.Remove(ctx, -100, 7))
	assert.NoError(c.Unban(ctx, -100, 7))
	assert.NoError(c.DeleteMessage(ctx, chat.MessageRef{Group: -100, MessageID: 1}))
	assert.NoError(c.Send(ctx, "-100", "hi"))
	assert.NoError(c.Send(ctx, "@channel", "hi"))
	assert.ErrorIs(c.Send(ctx, "channel", "hi"), chat.ErrInvalidInput)

	ok, err := c.IsAdmin(ctx, 7, -100)
	assert.NoError(err)
	assert.False(ok)

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	assert.NoError(c.Run(runCtx, 0, func(context.Context, int, *chat.Message) {}))
}

// Minimal Bot API server. Each handled method's form values are recorded; methods listed in delay answer only after that long, unless the client goes away first.
type fakeBotAPI struct {
	mu      sync.Mutex
	applied map[string][]map[string]string
	delay   map[string]time.Duration
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	w.Header().Set("Content-Type", "application/json")
	if method == "getMe" {
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Mod","username":"modbot"}}`)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	select {
	case <-time.After(f.delay[method]):
	case <-r.Context().Done():
		return
	}
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	f.mu.Lock()
	f.applied[method] = append(f.applied[method], form)
	f.mu.Unlock()
	fmt.Fprint(w, `{"ok":true,"result":true}`)
}

func (f *fakeBotAPI) calls(method string) []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied[method]
}

func testClient(t *testing.T, delay map[string]time.Duration) (*Client, *fakeBotAPI) {
	fake := &fakeBotAPI{applied: map[string][]map[string]string{}, delay: delay}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{Token: "123:abc", Endpoint: srv.URL + "/bot%s/%s"}, nil)
	require.NoError(t, err)
	require.False(t, c.DryRun())
	return c, fake
}

func TestRequestAbortedOnTimeout(t *testing.T) {
	assert := assert.New(t)
	c, fake := testClient(t, map[string]time.Duration{"banChatMember": 300 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := c.Remove(ctx, -100, 7)
	assert.ErrorIs(err, context.DeadlineExceeded)

	// the server never sees the ban through
	time.Sleep(500 * time.Millisecond)
	assert.Empty(fake.calls("banChatMember"))

	assert.NoError(c.Remove(context.Background(), -100, 7))
	assert.Len(fake.calls("banChatMember"), 1)
}

func TestRestrictNeverPermanent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, fake := testClient(t, nil)

	untilDate := func(i int) int64 {
		calls := fake.calls("restrictChatMember")
		require.Greater(t, len(calls), i)
		v, err := strconv.ParseInt(calls[i]["until_date"], 10, 64)
		require.NoError(t, err)
		return v
	}

	now := time.Now()
	assert.NoError(c.Restrict(ctx, -100, 7, now))
	assert.GreaterOrEqual(untilDate(0)-now.Unix(), int64(30))

	now = time.Now()
	assert.NoError(c.Restrict(ctx, -100, 7, now.Add(10*time.Second)))
	assert.GreaterOrEqual(untilDate(1)-now.Unix(), int64(30))

	until := time.Now().Add(5 * time.Minute)
	assert.NoError(c.Restrict(ctx, -100, 7, until))
	assert.Equal(until.Unix(), untilDate(2))
}

func TestRestrictUntil(t *testing.T) {
	assert := assert.New(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(now.Add(minRestriction), restrictUntil(now, now))
	assert.Equal(now.Add(minRestriction), restrictUntil(now, now.Add(10*time.Second)))
	assert.Equal(now.Add(time.Hour), restrictUntil(now, now.Add(time.Hour)))
	assert.Equal(now.Add(maxRestriction), restrictUntil(now, now.AddDate(2, 0, 0)))
}
