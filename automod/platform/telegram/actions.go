package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func memberConfig(group chat.GroupID, user chat.UserID) tgbotapi.ChatMemberConfig {
	return tgbotapi.ChatMemberConfig{
		ChatID: int64(group),
		UserID: int64(user),
	}
}

// does a request which returns only a success flag
func (c *Client) do(ctx context.Context, method string, cfg tgbotapi.Chattable) error {
	if c.dryRun {
		c.logger.Info("dry run", "method", method)
		return nil
	}
	return c.request(ctx, method, func(api *tgbotapi.BotAPI) error {
		_, err := api.Request(cfg)
		return err
	})
}

func (c *Client) DeleteMessage(ctx context.Context, ref chat.MessageRef) error {
	return c.do(ctx, "deleteMessage", tgbotapi.NewDeleteMessage(int64(ref.Group), int(ref.MessageID)))
}

// Telegram treats restrictions shorter than 30 seconds or longer than 366 days as permanent.
const (
	minRestriction = 35 * time.Second
	maxRestriction = 365 * 24 * time.Hour
)

// Clamps a restriction end into the range Telegram honors as temporary.
func restrictUntil(now, until time.Time) time.Time {
	if lo := now.Add(minRestriction); until.Before(lo) {
		return lo
	}
	if hi := now.Add(maxRestriction); until.After(hi) {
		return hi
	}
	return until
}

// Removes send permissions until the given time, clamped so the restriction is never permanent.
func (c *Client) Restrict(ctx context.Context, group chat.GroupID, user chat.UserID, until time.Time) error {
	return c.do(ctx, "restrictChatMember", tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: memberConfig(group, user),
		UntilDate:        restrictUntil(time.Now(), until).Unix(),
		Permissions:      &tgbotapi.ChatPermissions{},
	})
}

func (c *Client) Unrestrict(ctx context.Context, group chat.GroupID, user chat.UserID) error {
	return c.do(ctx, "restrictChatMember", tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: memberConfig(group, user),
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages:       true,
			CanSendMediaMessages:  true,
			CanSendPolls:          true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
			CanInviteUsers:        true,
		},
	})
}

// Bans the user; they stay banned until Unban.
func (c *Client) Remove(ctx context.Context, group chat.GroupID, user chat.UserID) error {
	return c.do(ctx, "banChatMember", tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: memberConfig(group, user),
	})
}

func (c *Client) Unban(ctx context.Context, group chat.GroupID, user chat.UserID) error {
	return c.do(ctx, "unbanChatMember", tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: memberConfig(group, user),
		OnlyIfBanned:     true,
	})
}

// Sends a text message. The destination is a numeric chat id, or a public "@channel" username.
func (c *Client) Send(ctx context.Context, destination, body string) error {
	destination = strings.TrimSpace(destination)
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(destination, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, body)
	} else if strings.HasPrefix(destination, "@") {
		msg = tgbotapi.NewMessageToChannel(destination, body)
	} else {
		return fmt.Errorf("%w: destination must be a chat id or @channel, got %q", chat.ErrInvalidInput, destination)
	}
	if !c.limits.allowChat(destination) {
		return fmt.Errorf("%w: %s", ErrChatRateLimited, destination)
	}
	if c.dryRun {
		c.logger.Info("dry run", "method", "sendMessage", "destination", destination)
		return nil
	}
	return c.request(ctx, "sendMessage", func(api *tgbotapi.BotAPI) error {
		_, err := api.Send(msg)
		return err
	})
}

// Whether the user is an administrator or the creator of the group. Results are cached briefly.
func (c *Client) IsAdmin(ctx context.Context, actor chat.UserID, group chat.GroupID) (bool, error) {
	if c.dryRun {
		return false, nil
	}
	key := group.String() + "/" + actor.String()
	if ok, found := c.admins.Get(key); found {
		return ok, nil
	}
	var member tgbotapi.ChatMember
	err := c.request(ctx, "getChatMember", func(api *tgbotapi.BotAPI) error {
		var err error
		member, err = api.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
				ChatID: int64(group),
				UserID: int64(actor),
			},
		})
		return err
	})
	if err != nil {
		return false, err
	}
	ok := member.IsAdministrator() || member.IsCreator()
	c.admins.Add(key, ok)
	return ok, nil
}
