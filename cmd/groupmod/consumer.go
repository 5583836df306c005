package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/automod/engine"
	"github.com/groupmeg/groupmod/automod/enforce"
	"github.com/groupmeg/groupmod/automod/ledger"

	"go.opentelemetry.io/otel/attribute"
)

// Handles one inbound message: admin commands are executed, everything else goes through automatic moderation. Outcomes worth announcing are replied to the group.
func (srv *Server) HandleMessage(ctx context.Context, updateID int, msg *chat.Message) {
	ctx, span := tracer.Start(ctx, "HandleMessage")
	defer span.End()
	span.SetAttributes(attribute.Int("update", updateID))

	if updateID > 0 {
		atomic.StoreInt64(&srv.lastUpdate, int64(updateID))
		currentUpdate.Set(float64(updateID))
	}
	messagesHandled.Inc()

	if handled := srv.handleCommand(ctx, msg); handled {
		return
	}

	out, err := srv.engine.ProcessMessage(ctx, msg)
	if err != nil {
		messagesFailed.Inc()
		srv.logger.Error("failed to process message", "group", msg.Group(), "user", msg.Sender, "msg", msg.Ref.MessageID, "err", err)
		if errors.Is(err, enforce.ErrEnforcementFailed) {
			srv.reply(ctx, msg.Group(), "Could not apply a moderation action. Check that the bot is an admin with the right permissions.")
		}
	}
	if text := describeOutcome(out, msg.Sender); text != "" {
		srv.reply(ctx, msg.Group(), text)
	}
}

func (srv *Server) reply(ctx context.Context, group chat.GroupID, text string) {
	if err := srv.platform.Send(ctx, group.String(), text); err != nil {
		repliesFailed.Inc()
		srv.logger.Warn("failed to reply to group", "group", group, "err", err)
	}
}

// Announcement for an automatic moderation outcome; empty when there is nothing to say.
func describeOutcome(out *engine.Outcome, user chat.UserID) string {
	if out == nil {
		return ""
	}
	if out.Flooded {
		if out.Action == nil {
			return ""
		}
		return fmt.Sprintf("User %s has been muted for %s for flooding the chat.", user, formatSeconds(out.Action.DurationSeconds))
	}
	if out.Decision == nil {
		return ""
	}
	return describeDecision(out.Decision, user)
}

func describeDecision(dec *engine.Decision, user chat.UserID) string {
	if dec.Escalated() {
		if dec.Applied == nil {
			return ""
		}
		return describeAction(dec.Applied) + " for reaching the warning limit."
	}
	return fmt.Sprintf("User %s has been warned.\nReason: %s\nWarnings: %d/%d", user, dec.Reason, dec.Count, dec.Limit)
}

func describeAction(act *ledger.ModerationAction) string {
	switch act.Kind {
	case chat.ActionMute:
		return fmt.Sprintf("User %s has been muted for %s", act.UserID, formatSeconds(act.DurationSeconds))
	case chat.ActionUnmute:
		return fmt.Sprintf("User %s has been unmuted", act.UserID)
	case chat.ActionKick:
		return fmt.Sprintf("User %s has been kicked", act.UserID)
	case chat.ActionBan:
		return fmt.Sprintf("User %s has been banned", act.UserID)
	case chat.ActionUnban:
		return fmt.Sprintf("User %s has been unbanned", act.UserID)
	default:
		return fmt.Sprintf("Applied %s to user %s", act.Kind, act.UserID)
	}
}
