package main

import (
	"testing"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/automod/engine"
	"github.com/groupmeg/groupmod/automod/ledger"
	"github.com/groupmeg/groupmod/automod/policy"

	"github.com/stretchr/testify/assert"
)

func TestCutField(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		in, head, rest string
	}{
		{"", "", ""},
		{"one", "one", ""},
		{"  one  two three ", "one", "two three"},
		{"@news\t10m  hello   world", "@news", "10m  hello   world"},
	}
	for _, f := range fixtures {
		head, rest := cutField(f.in)
		assert.Equal(f.head, head, f.in)
		assert.Equal(f.rest, rest, f.in)
	}
}

func TestApplySetting(t *testing.T) {
	assert := assert.New(t)
	base := policy.Default()

	p, err := applySetting(base, "AntiLink", "off")
	assert.NoError(err)
	assert.False(p.AntiLink)
	assert.True(base.AntiLink)

	p, err = applySetting(base, "action", "ban")
	assert.NoError(err)
	assert.Equal(chat.ActionBan, p.EscalationAction)

	p, err = applySetting(base, "muteduration", "1h")
	assert.NoError(err)
	assert.Equal(time.Hour, p.MuteDuration)

	p, err = applySetting(base, "exemption", "ALL")
	assert.NoError(err)
	assert.Equal(policy.ExemptAll, p.AdminExemption)

	p, err = applySetting(base, "delword", "spam")
	assert.NoError(err)
	assert.NotContains(p.BannedWords, "spam")
	assert.Contains(p.BannedWords, "scam")

	one := base
	one.BannedWords = []string{"only"}
	_, err = applySetting(one, "delword", "only")
	assert.ErrorIs(err, chat.ErrInvalidInput)

	for _, bad := range [][2]string{
		{"antiflood", "maybe"},
		{"warnlimit", "lots"},
		{"action", "unmute"},
		{"exemption", "mods"},
		{"addword", ""},
		{"colour", "blue"},
	} {
		_, err := applySetting(base, bad[0], bad[1])
		assert.ErrorIs(err, chat.ErrInvalidInput, bad[0])
	}
}

func TestDescribeOutcome(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("", describeOutcome(nil, 5))
	assert.Equal("", describeOutcome(&engine.Outcome{}, 5))
	// flood mute that could not be applied
	assert.Equal("", describeOutcome(&engine.Outcome{Flooded: true}, 5))

	ban := &ledger.ModerationAction{UserID: 5, Kind: chat.ActionBan}
	out := &engine.Outcome{Decision: &engine.Decision{Count: 3, Limit: 3, Action: chat.ActionBan, Applied: ban}}
	assert.Equal("User 5 has been banned for reaching the warning limit.", describeOutcome(out, 5))

	out = &engine.Outcome{Decision: &engine.Decision{Count: 1, Limit: 3, Reason: "Posting external links"}}
	assert.Equal("User 5 has been warned.\nReason: Posting external links\nWarnings: 1/3", describeOutcome(out, 5))
}
