package engine

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/automod/enforce"
	"github.com/groupmeg/groupmod/automod/floodstore"
	"github.com/groupmeg/groupmod/automod/ledger"
	"github.com/groupmeg/groupmod/automod/policy"
	"github.com/groupmeg/groupmod/util/cliutil"
)

// Group and admin used by EngineTestFixture.
var (
	TestGroup chat.GroupID = -1001
	TestAdmin chat.UserID  = 1
)

// Engine wired to in-memory collaborators, plus handles on those collaborators for assertions.
type TestFixture struct {
	Engine   *Engine
	Platform *chat.MockPlatform
	Clock    *chat.FakeClock
	Policies *policy.MemPolicyStore
	Roles    *chat.StaticRoles
	Ledger   *ledger.Ledger
}

// Builds an engine on an in-memory sqlite database. Panics on setup failure.
func EngineTestFixture() TestFixture {
	db, err := cliutil.SetupDatabase("sqlite://:memory:", 1)
	if err != nil {
		panic(err)
	}
	ldg := ledger.NewLedger(db)
	if err := ldg.Migrate(); err != nil {
		panic(err)
	}
	mp := chat.NewMockPlatform()
	clock := chat.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	policies := policy.NewMemPolicyStore()
	roles := &chat.StaticRoles{Admins: map[chat.GroupID][]chat.UserID{
		TestGroup: {TestAdmin},
	}}
	engine := &Engine{
		Logger:            slog.Default(),
		Policies:          policies,
		Floods:            floodstore.NewMemFloodStore(floodstore.DefaultWindow, floodstore.DefaultLimit),
		Ledger:            ldg,
		Executor:          enforce.NewExecutor(mp, ldg, slog.Default()),
		Platform:          mp,
		Roles:             roles,
		Clock:             clock,
		Locks:             NewKeyLocks(),
		FloodMuteDuration: DefaultFloodMuteDuration,
	}
	return TestFixture{
		Engine:   engine,
		Platform: mp,
		Clock:    clock,
		Policies: policies,
		Roles:    roles,
		Ledger:   ldg,
	}
}

var testMessageID atomic.Int64

// Message from user in TestGroup, sent at the fixture's current time.
func (tf *TestFixture) Message(user chat.UserID, text string) *chat.Message {
	return &chat.Message{
		Ref:    chat.MessageRef{Group: TestGroup, MessageID: testMessageID.Add(1)},
		Sender: user,
		Text:   text,
		SentAt: tf.Clock.Now(),
	}
}
