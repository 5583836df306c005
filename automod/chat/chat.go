// Value types shared by the moderation engine and its platform adapters.
//
// Nothing in this package knows about a particular chat platform: adapters (eg, `automod/platform/telegram`) convert their SDK objects into these structs at the boundary.
package chat

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Platform-assigned identifier of a group chat.
type GroupID int64

// Platform-assigned identifier of a user account.
type UserID int64

func (g GroupID) String() string {
	return strconv.FormatInt(int64(g), 10)
}

func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

// Reference to a single message, sufficient to delete it.
type MessageRef struct {
	Group     GroupID
	MessageID int64
}

func (r MessageRef) String() string {
	return fmt.Sprintf("%s/%d", r.Group, r.MessageID)
}

// Inbound chat message, as seen by the engine.
type Message struct {
	Ref    MessageRef
	Sender UserID
	Text   string
	SentAt time.Time
	// Author of the message this one replies to, if any. Admin commands use this as the target.
	ReplyTo *UserID
	// text of the message replied to, if any
	ReplyText string
	// bot command name, without the leading slash or any "@botname" suffix; empty for ordinary messages
	Command string
	// everything after the command name
	CommandArgs string
}

func (m *Message) Group() GroupID {
	return m.Ref.Group
}

// Actions the engine can take against the chat platform.
//
// Implementations should treat every call as a single attempt: no retries. Errors for an unknown user or chat should wrap ErrNotFound.
type Platform interface {
	DeleteMessage(ctx context.Context, ref MessageRef) error
	Restrict(ctx context.Context, group GroupID, user UserID, until time.Time) error
	Unrestrict(ctx context.Context, group GroupID, user UserID) error
	Remove(ctx context.Context, group GroupID, user UserID) error
	Unban(ctx context.Context, group GroupID, user UserID) error
	Sender
}

// Delivers a text body to a destination (a numeric chat id, or a public channel name like "@news").
type Sender interface {
	Send(ctx context.Context, destination, body string) error
}

type RoleOracle interface {
	IsAdmin(ctx context.Context, actor UserID, group GroupID) (bool, error)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Wall-clock time source.
var SystemClock Clock = systemClock{}
