package telegram

import (
	"errors"
	"fmt"
	"strings"

	"github.com/groupmeg/groupmod/automod/chat"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Returned by Send when the per-chat send window is exhausted. The message is dropped, not queued.
var ErrChatRateLimited = errors.New("per-chat send rate exceeded")

// Bot API descriptions which mean the user or chat does not exist (from the bot's point of view)
var notFoundDescriptions = []string{
	"user not found",
	"chat not found",
	"participant_id_invalid",
	"user_not_participant",
	"member not found",
	"message to delete not found",
	"user is not a member",
}

// Wraps Bot API "not found" style errors with chat.ErrNotFound, leaving others as they are.
func translateError(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	desc := strings.ToLower(apiErr.Message)
	for _, nf := range notFoundDescriptions {
		if strings.Contains(desc, nf) {
			return fmt.Errorf("%w: %s", chat.ErrNotFound, apiErr.Message)
		}
	}
	return fmt.Errorf("telegram API error %d: %s", apiErr.Code, apiErr.Message)
}
