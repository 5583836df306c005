package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/automod/enforce"
	"github.com/groupmeg/groupmod/automod/engine"
	"github.com/groupmeg/groupmod/automod/keyword"
	"github.com/groupmeg/groupmod/automod/policy"
	"github.com/groupmeg/groupmod/automod/schedule"
)

const noReason = "No reason provided"

// Admin command handler. Returns the reply text; errors wrapping chat.ErrInvalidInput are shown to the admin as-is.
type commandFunc func(ctx context.Context, srv *Server, msg *chat.Message) (string, error)

var commands = map[string]commandFunc{
	"warn":       cmdWarn,
	"warnings":   cmdWarnings,
	"clearwarns": cmdClearWarns,
	"topwarned":  cmdTopWarned,
	"mute":       cmdMute,
	"unmute":     cmdUnmute,
	"kick":       cmdKick,
	"ban":        cmdBan,
	"unban":      cmdUnban,
	"schedule":   cmdSchedule,
	"cancelpost": cmdCancelPost,
	"crosspost":  cmdCrossPost,
	"policy":     cmdPolicy,
	"set":        cmdSet,
}

// Runs msg as an admin command if it is one. Returns false when the message should go through ordinary moderation instead: not a known command, or sent by a non-admin.
func (srv *Server) handleCommand(ctx context.Context, msg *chat.Message) bool {
	name := strings.ToLower(msg.Command)
	fn, ok := commands[name]
	if !ok {
		return false
	}
	ctx, span := tracer.Start(ctx, "HandleCommand")
	defer span.End()

	logger := srv.logger.With("command", name, "group", msg.Group(), "user", msg.Sender)
	isAdmin, err := srv.roles.IsAdmin(ctx, msg.Sender, msg.Group())
	if err != nil {
		logger.Warn("admin lookup failed", "err", err)
		commandsHandled.WithLabelValues(name, "error").Inc()
		srv.reply(ctx, msg.Group(), "Could not check your admin status, try again later.")
		return true
	}
	if !isAdmin {
		commandsHandled.WithLabelValues(name, "denied").Inc()
		srv.reply(ctx, msg.Group(), "Only group admins can use this command.")
		return false
	}

	text, err := fn(ctx, srv, msg)
	switch {
	case err == nil:
		commandsHandled.WithLabelValues(name, "ok").Inc()
	case errors.Is(err, chat.ErrInvalidInput):
		commandsHandled.WithLabelValues(name, "invalid").Inc()
		text = err.Error()
	case errors.Is(err, enforce.ErrEnforcementFailed):
		commandsHandled.WithLabelValues(name, "error").Inc()
		logger.Error("command enforcement failed", "err", err)
		if text == "" {
			text = "Could not apply the action. Check that the bot is an admin with the right permissions."
		}
	default:
		commandsHandled.WithLabelValues(name, "error").Inc()
		logger.Error("command failed", "err", err)
		text = "Command failed, try again later."
	}
	if text != "" {
		srv.reply(ctx, msg.Group(), text)
	}
	return true
}

// Splits off the first whitespace-separated field.
func cutField(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func replyTarget(msg *chat.Message, verb string) (chat.UserID, error) {
	if msg.ReplyTo == nil || *msg.ReplyTo == 0 {
		return 0, fmt.Errorf("%w: reply to a user's message to %s them", chat.ErrInvalidInput, verb)
	}
	return *msg.ReplyTo, nil
}

func reasonOrDefault(raw string) string {
	if r := strings.TrimSpace(raw); r != "" {
		return r
	}
	return noReason
}

func formatSeconds(secs int64) string {
	return schedule.FormatDelay(time.Duration(secs) * time.Second)
}

func cmdWarn(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	target, err := replyTarget(msg, "warn")
	if err != nil {
		return "", err
	}
	dec, err := srv.engine.IssueWarning(ctx, engine.WarnRequest{
		Group:    msg.Group(),
		User:     target,
		Reason:   reasonOrDefault(msg.CommandArgs),
		IssuedBy: msg.Sender,
	})
	if dec == nil {
		return "", err
	}
	return describeDecision(dec, target), err
}

func cmdWarnings(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	target := msg.Sender
	if msg.ReplyTo != nil && *msg.ReplyTo != 0 {
		target = *msg.ReplyTo
	}
	p, err := srv.policies.GetPolicy(ctx, msg.Group())
	if err != nil {
		return "", err
	}
	warnings, err := srv.ledger.ListWarnings(ctx, msg.Group(), target)
	if err != nil {
		return "", err
	}
	if len(warnings) == 0 {
		return fmt.Sprintf("User %s has no warnings.", target), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "User %s has %d/%d warnings:", target, len(warnings), p.WarnLimit)
	for i, w := range warnings {
		fmt.Fprintf(&sb, "\n%d. %s (%s)", i+1, w.Reason, w.IssuedAt.UTC().Format(time.DateTime))
	}
	return sb.String(), nil
}

func cmdClearWarns(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	target, err := replyTarget(msg, "clear warnings for")
	if err != nil {
		return "", err
	}
	n, err := srv.engine.ClearWarnings(ctx, msg.Group(), target)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Cleared %d warnings for user %s.", n, target), nil
}

func cmdTopWarned(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	top, err := srv.ledger.TopWarned(ctx, msg.Group(), 10)
	if err != nil {
		return "", err
	}
	if len(top) == 0 {
		return "Nobody in this group has warnings.", nil
	}
	var sb strings.Builder
	sb.WriteString("Most warned users:")
	for i, wc := range top {
		fmt.Fprintf(&sb, "\n%d. %s: %d", i+1, wc.UserID, wc.Count)
	}
	return sb.String(), nil
}

func (srv *Server) applyAction(ctx context.Context, msg *chat.Message, action chat.ActionKind, target chat.UserID, dur time.Duration, reason string) (string, error) {
	act, err := srv.engine.Enforce(ctx, enforce.Request{
		Action:   action,
		Group:    msg.Group(),
		User:     target,
		Duration: dur,
		Reason:   reason,
		IssuedBy: msg.Sender,
	})
	if err != nil {
		return "", err
	}
	if act == nil {
		// undoing something that was never done
		return fmt.Sprintf("Nothing to %s for user %s.", action, target), nil
	}
	text := describeAction(act) + "."
	if act.Reason != "" && action.IsEscalation() {
		text += "\nReason: " + act.Reason
	}
	return text, nil
}

func cmdMute(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	target, err := replyTarget(msg, "mute")
	if err != nil {
		return "", err
	}
	dur := policy.DefaultMuteDuration
	raw, rest := cutField(msg.CommandArgs)
	if raw != "" {
		if dur, err = schedule.ParseDelay(raw); err != nil {
			return "", err
		}
	}
	return srv.applyAction(ctx, msg, chat.ActionMute, target, dur, reasonOrDefault(rest))
}

func cmdUnmute(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	target, err := replyTarget(msg, "unmute")
	if err != nil {
		return "", err
	}
	return srv.applyAction(ctx, msg, chat.ActionUnmute, target, 0, "")
}

func cmdKick(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	target, err := replyTarget(msg, "kick")
	if err != nil {
		return "", err
	}
	return srv.applyAction(ctx, msg, chat.ActionKick, target, 0, reasonOrDefault(msg.CommandArgs))
}

func cmdBan(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	target, err := replyTarget(msg, "ban")
	if err != nil {
		return "", err
	}
	return srv.applyAction(ctx, msg, chat.ActionBan, target, 0, reasonOrDefault(msg.CommandArgs))
}

func cmdUnban(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	raw, _ := cutField(msg.CommandArgs)
	if raw == "" {
		return "", fmt.Errorf("%w: provide a user id to unban", chat.ErrInvalidInput)
	}
	uid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || uid == 0 {
		return "", fmt.Errorf("%w: invalid user id %q", chat.ErrInvalidInput, raw)
	}
	return srv.applyAction(ctx, msg, chat.ActionUnban, chat.UserID(uid), 0, "")
}

// "here" names the group the command was sent in
func resolveDestination(msg *chat.Message, dest string) string {
	if strings.EqualFold(dest, "here") {
		return msg.Group().String()
	}
	return dest
}

func cmdSchedule(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	dest, rest := cutField(msg.CommandArgs)
	delay, body := cutField(rest)
	if dest == "" || delay == "" || body == "" {
		return "", fmt.Errorf("%w: usage: /schedule <destination> <delay> <message>", chat.ErrInvalidInput)
	}
	dest = resolveDestination(msg, dest)
	id, err := srv.dispatcher.Schedule(ctx, dest, body, delay, srv.engine.Clock.Now())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Scheduled post #%d to %s in %s.", id, dest, strings.ToLower(delay)), nil
}

func cmdCancelPost(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	raw, _ := cutField(msg.CommandArgs)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: usage: /cancelpost <id>", chat.ErrInvalidInput)
	}
	pending := slices.ContainsFunc(srv.dispatcher.Pending(), func(p schedule.ScheduledPost) bool {
		return p.ID == id
	})
	if err := srv.dispatcher.Cancel(ctx, id); err != nil {
		return "", err
	}
	if !pending {
		return fmt.Sprintf("No pending post #%d.", id), nil
	}
	return fmt.Sprintf("Cancelled post #%d.", id), nil
}

func cmdCrossPost(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	if strings.TrimSpace(msg.ReplyText) == "" {
		return "", fmt.Errorf("%w: reply to the message you want to cross-post", chat.ErrInvalidInput)
	}
	dests := strings.Fields(msg.CommandArgs)
	if len(dests) == 0 {
		return "", fmt.Errorf("%w: usage: /crosspost <destination...>", chat.ErrInvalidInput)
	}
	for i, d := range dests {
		dests[i] = resolveDestination(msg, d)
	}
	if err := srv.dispatcher.CrossPost(ctx, msg.ReplyText, dests); err != nil {
		if errors.Is(err, chat.ErrInvalidInput) {
			return "", err
		}
		srv.logger.Warn("cross-post partly failed", "group", msg.Group(), "err", err)
		return fmt.Sprintf("Cross-post finished with errors:\n%s", err), nil
	}
	return fmt.Sprintf("Cross-posted to %d destinations.", len(dests)), nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func describePolicy(p *policy.GroupPolicy) string {
	words := "built-in list"
	if len(p.BannedWords) > 0 {
		words = strings.Join(p.BannedWords, ", ")
	}
	return fmt.Sprintf("Anti-flood: %s\nAnti-spam: %s\nAnti-link: %s\nWarning limit: %d\nOn limit: %s\nMute duration: %s\nAdmins exempt from: %s\nBanned words: %s",
		onOff(p.AntiFlood), onOff(p.AntiSpam), onOff(p.AntiLink), p.WarnLimit, p.EscalationAction,
		schedule.FormatDelay(p.MuteDuration), p.AdminExemption, words)
}

func cmdPolicy(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	p, err := srv.policies.GetPolicy(ctx, msg.Group())
	if err != nil {
		return "", err
	}
	return describePolicy(&p), nil
}

func parseOnOff(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected on or off, got %q", chat.ErrInvalidInput, raw)
}

// copy of the group's effective word list
func bannedWords(p *policy.GroupPolicy) []string {
	if len(p.BannedWords) == 0 {
		return slices.Clone(keyword.DefaultBannedWords)
	}
	return slices.Clone(p.BannedWords)
}

// Applies one "/set <key> <value>" change to a copy of p.
func applySetting(p policy.GroupPolicy, key, value string) (policy.GroupPolicy, error) {
	var err error
	switch strings.ToLower(key) {
	case "antiflood":
		p.AntiFlood, err = parseOnOff(value)
	case "antispam":
		p.AntiSpam, err = parseOnOff(value)
	case "antilink":
		p.AntiLink, err = parseOnOff(value)
	case "warnlimit":
		n, perr := strconv.Atoi(value)
		if perr != nil {
			return p, fmt.Errorf("%w: invalid warning limit %q", chat.ErrInvalidInput, value)
		}
		p.WarnLimit = n
	case "action":
		p.EscalationAction, err = chat.ParseActionKind(value)
	case "muteduration":
		p.MuteDuration, err = schedule.ParseDelay(value)
	case "exemption":
		p.AdminExemption = policy.Exemption(strings.ToLower(value))
	case "addword":
		if value == "" {
			return p, fmt.Errorf("%w: missing word", chat.ErrInvalidInput)
		}
		p.BannedWords = append(bannedWords(&p), value)
	case "delword":
		w := strings.ToLower(value)
		p.BannedWords = slices.DeleteFunc(bannedWords(&p), func(s string) bool { return s == w })
		if len(p.BannedWords) == 0 {
			return p, fmt.Errorf("%w: cannot remove the last banned word", chat.ErrInvalidInput)
		}
	default:
		return p, fmt.Errorf("%w: unknown setting %q (antiflood, antispam, antilink, warnlimit, action, muteduration, exemption, addword, delword)", chat.ErrInvalidInput, key)
	}
	if err != nil {
		return p, err
	}
	return p.Normalize()
}

func cmdSet(ctx context.Context, srv *Server, msg *chat.Message) (string, error) {
	key, value := cutField(msg.CommandArgs)
	if key == "" {
		return "", fmt.Errorf("%w: usage: /set <setting> <value>", chat.ErrInvalidInput)
	}
	p, err := srv.policies.GetPolicy(ctx, msg.Group())
	if err != nil {
		return "", err
	}
	p, err = applySetting(p, key, value)
	if err != nil {
		return "", err
	}
	if err := srv.policies.SetPolicy(ctx, msg.Group(), p); err != nil {
		return "", err
	}
	srv.logger.Info("group policy updated", "group", msg.Group(), "by", msg.Sender, "setting", key, "value", value)
	return "Settings updated.\n" + describePolicy(&p), nil
}
