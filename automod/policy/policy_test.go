package policy

import (
	"context"
	"testing"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert := assert.New(t)

	p := Default()
	p.BannedWords = []string{"Spam", "spam", "  ", "SCAM"}
	p.EscalationAction = ""
	p.AdminExemption = ""
	out, err := p.Normalize()
	assert.NoError(err)
	assert.Equal([]string{"spam", "scam"}, out.BannedWords)
	assert.Equal(chat.ActionMute, out.EscalationAction)
	assert.Equal(ExemptLinks, out.AdminExemption)

	fixtures := []func(p *GroupPolicy){
		func(p *GroupPolicy) { p.WarnLimit = 0 },
		func(p *GroupPolicy) { p.MuteDuration = -time.Second },
		func(p *GroupPolicy) { p.EscalationAction = chat.ActionUnban },
		func(p *GroupPolicy) { p.EscalationAction = "shout" },
		func(p *GroupPolicy) { p.AdminExemption = "some" },
	}
	for i, mut := range fixtures {
		p := Default()
		mut(&p)
		_, err := p.Normalize()
		assert.ErrorIs(err, chat.ErrInvalidInput, "fixture %d", i)
	}
}

func TestExemptionScope(t *testing.T) {
	assert := assert.New(t)

	p := Default()
	assert.False(p.AdminSkipsFlood())
	assert.False(p.AdminSkipsSpam())
	assert.True(p.AdminSkipsLinks())

	p.AdminExemption = ExemptAll
	assert.True(p.AdminSkipsFlood())
	assert.True(p.AdminSkipsSpam())
	assert.True(p.AdminSkipsLinks())

	p.AdminExemption = ExemptNone
	assert.False(p.AdminSkipsFlood())
	assert.False(p.AdminSkipsSpam())
	assert.False(p.AdminSkipsLinks())
}

// exemptions and action kinds are constants, so they work in constant declarations
const (
	linksOnly  = ExemptLinks
	escalateTo = chat.ActionKick
)

func TestEnumConstants(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(Exemption("links"), linksOnly)
	assert.Equal(chat.ActionKind("kick"), escalateTo)
}

func TestMemPolicyStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	ps := NewMemPolicyStore()
	p, err := ps.GetPolicy(ctx, 1)
	assert.NoError(err)
	assert.Equal(Default(), p)

	custom := Default()
	custom.WarnLimit = 0
	assert.ErrorIs(ps.SetPolicy(ctx, 1, custom), chat.ErrInvalidInput)

	custom.WarnLimit = 7
	assert.NoError(ps.SetPolicy(ctx, 1, custom))
	p, err = ps.GetPolicy(ctx, 1)
	assert.NoError(err)
	assert.Equal(7, p.WarnLimit)
}

func TestLoadFromFileJSON(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	ps := NewMemPolicyStore()
	assert.NoError(ps.LoadFromFileJSON("testdata/policies.json"))

	// unknown groups get the file default, layered over built-in defaults
	p, err := ps.GetPolicy(ctx, 42)
	assert.NoError(err)
	assert.True(p.AntiLink)
	assert.True(p.AntiFlood)
	assert.Equal(4, p.WarnLimit)

	p, err = ps.GetPolicy(ctx, -1001234)
	assert.NoError(err)
	assert.True(p.AntiLink)
	assert.Equal(2, p.WarnLimit)
	assert.Equal(chat.ActionBan, p.EscalationAction)
	assert.Equal([]string{"crypto", "pump"}, p.BannedWords)
	assert.Equal(ExemptNone, p.AdminExemption)

	p, err = ps.GetPolicy(ctx, -1005678)
	assert.NoError(err)
	assert.False(p.AntiFlood)
	assert.Equal(60*time.Second, p.MuteDuration)
	assert.Equal(4, p.WarnLimit)

	assert.Error(ps.LoadFromFileJSON("testdata/missing.json"))
}

type countingStore struct {
	PolicyStore
	gets int
}

func (s *countingStore) GetPolicy(ctx context.Context, group chat.GroupID) (GroupPolicy, error) {
	s.gets++
	return s.PolicyStore.GetPolicy(ctx, group)
}

func TestCachedStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	inner := &countingStore{PolicyStore: NewMemPolicyStore()}
	cs := NewCachedStore(inner, 100, time.Hour)

	for i := 0; i < 3; i++ {
		_, err := cs.GetPolicy(ctx, 5)
		assert.NoError(err)
	}
	assert.Equal(1, inner.gets)

	p := Default()
	p.AntiLink = true
	assert.NoError(cs.SetPolicy(ctx, 5, p))
	got, err := cs.GetPolicy(ctx, 5)
	assert.NoError(err)
	assert.True(got.AntiLink)
	assert.Equal(2, inner.gets)
}

func TestRedisPolicyStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ps := NewRedisPolicyStoreFromClient(rdb, time.Minute)
	p, err := ps.GetPolicy(ctx, -100)
	assert.NoError(err)
	assert.Equal(Default().WarnLimit, p.WarnLimit)

	custom := Default()
	custom.WarnLimit = 9
	custom.BannedWords = []string{"Rugpull"}
	custom.EscalationAction = chat.ActionKick
	assert.NoError(ps.SetPolicy(ctx, -100, custom))

	p, err = ps.GetPolicy(ctx, -100)
	assert.NoError(err)
	assert.Equal(9, p.WarnLimit)
	assert.Equal([]string{"rugpull"}, p.BannedWords)
	assert.Equal(chat.ActionKick, p.EscalationAction)

	// a second instance sharing the same redis sees the stored policy
	other := NewRedisPolicyStoreFromClient(rdb, time.Minute)
	p, err = other.GetPolicy(ctx, -100)
	assert.NoError(err)
	assert.Equal(9, p.WarnLimit)
}

func TestRedisPolicyStoreSeed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ps := NewRedisPolicyStoreFromClient(rdb, time.Minute)

	stored := Default()
	stored.WarnLimit = 7
	assert.NoError(ps.SetPolicy(ctx, -1, stored))

	seed := Default()
	seed.WarnLimit = 4
	added, err := ps.Seed(ctx, map[chat.GroupID]GroupPolicy{-1: seed, -2: seed})
	assert.NoError(err)
	assert.Equal(1, added)

	p, err := ps.GetPolicy(ctx, -1)
	assert.NoError(err)
	assert.Equal(7, p.WarnLimit)
	p, err = ps.GetPolicy(ctx, -2)
	assert.NoError(err)
	assert.Equal(4, p.WarnLimit)
}
