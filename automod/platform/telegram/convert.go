package telegram

import (
	"strings"

	"github.com/groupmeg/groupmod/automod/chat"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Converts a group message (new or edited) into a chat.Message. Private chats, channel posts, and messages without a human sender are skipped.
func ConvertUpdate(u tgbotapi.Update) (*chat.Message, bool) {
	m := u.Message
	if m == nil {
		m = u.EditedMessage
	}
	if m == nil || m.From == nil || m.Chat == nil {
		return nil, false
	}
	if !m.Chat.IsGroup() && !m.Chat.IsSuperGroup() {
		return nil, false
	}
	if m.From.IsBot {
		return nil, false
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}
	msg := &chat.Message{
		Ref: chat.MessageRef{
			Group:     chat.GroupID(m.Chat.ID),
			MessageID: int64(m.MessageID),
		},
		Sender: chat.UserID(m.From.ID),
		Text:   text,
		SentAt: m.Time(),
	}
	if r := m.ReplyToMessage; r != nil && r.From != nil {
		target := chat.UserID(r.From.ID)
		msg.ReplyTo = &target
		msg.ReplyText = r.Text
		if msg.ReplyText == "" {
			msg.ReplyText = r.Caption
		}
	}
	if u.Message != nil && m.IsCommand() {
		msg.Command = strings.ToLower(m.Command())
		msg.CommandArgs = strings.TrimSpace(m.CommandArguments())
	}
	return msg, true
}
