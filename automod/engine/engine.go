package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/automod/enforce"
	"github.com/groupmeg/groupmod/automod/floodstore"
	"github.com/groupmeg/groupmod/automod/keyword"
	"github.com/groupmeg/groupmod/automod/ledger"
	"github.com/groupmeg/groupmod/automod/policy"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("automod_engine")

const (
	FloodReason = "Flooding chat"
	// flood mutes are fixed-length, independent of the group's warning escalation
	DefaultFloodMuteDuration = 300 * time.Second
)

// runtime for moderating inbound messages, managing warnings, and applying enforcement actions.
//
// Every pointer and interface field must be set; EngineTestFixture shows a complete setup.
type Engine struct {
	Logger            *slog.Logger
	Policies          policy.PolicyStore
	Floods            floodstore.FloodStore
	Ledger            *ledger.Ledger
	Executor          *enforce.Executor
	Platform          chat.Platform
	Roles             chat.RoleOracle
	Clock             chat.Clock
	Locks             *KeyLocks
	FloodMuteDuration time.Duration
}

// What happened to one inbound message.
type Outcome struct {
	// set when the message tripped flood detection; no content rules ran
	Flooded bool
	Verdict keyword.Verdict
	// set when a content rule fired and a warning was issued
	Decision *Decision
	// action recorded for the flood mute or the escalation, if any
	Action *ledger.ModerationAction
}

// Runs one inbound message through flood detection, then the content rules. A triggering rule deletes the message, issues a warning, and possibly escalates.
//
// Enforcement failures are returned (matching enforce.ErrEnforcementFailed) together with a non-nil Outcome; warning state has already been committed by then.
func (eng *Engine) ProcessMessage(ctx context.Context, msg *chat.Message) (out *Outcome, err error) {
	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod message execution exception", "err", r, "group", msg.Group(), "user", msg.Sender)
			err = fmt.Errorf("panic processing message %s: %v", msg.Ref, r)
		}
	}()

	ctx, span := tracer.Start(ctx, "ProcessMessage")
	defer span.End()
	span.SetAttributes(attribute.Int64("group", int64(msg.Group())), attribute.Int64("user", int64(msg.Sender)))

	start := time.Now()
	defer func() {
		messageProcessDuration.Observe(time.Since(start).Seconds())
		if err != nil && !errors.Is(err, enforce.ErrEnforcementFailed) {
			messageErrorCount.Inc()
		}
	}()

	if msg.Sender == 0 {
		return nil, fmt.Errorf("%w: message without sender", chat.ErrInvalidInput)
	}
	logger := eng.Logger.With("group", msg.Group(), "user", msg.Sender, "msg", msg.Ref.MessageID)

	p, err := eng.Policies.GetPolicy(ctx, msg.Group())
	if err != nil {
		return nil, fmt.Errorf("fetching group policy: %w", err)
	}
	isAdmin := eng.isAdmin(ctx, logger, &p, msg)

	unlock := eng.Locks.LockPair(msg.Group(), msg.Sender)
	defer unlock()

	now := eng.Clock.Now()
	out = &Outcome{}

	if p.AntiFlood && !(isAdmin && p.AdminSkipsFlood()) {
		over, err := eng.Floods.RecordEvent(ctx, msg.Group(), msg.Sender, now)
		if err != nil {
			return nil, fmt.Errorf("recording flood event: %w", err)
		}
		if over {
			floodDetectedCount.Inc()
			messageProcessCount.WithLabelValues("flood").Inc()
			out.Flooded = true
			logger.Info("flood detected")
			act, err := eng.Executor.Apply(ctx, enforce.Request{
				Action:   chat.ActionMute,
				Group:    msg.Group(),
				User:     msg.Sender,
				Duration: eng.floodMuteDuration(),
				Reason:   FloodReason,
				Now:      now,
			})
			out.Action = act
			return out, err
		}
	}

	out.Verdict = keyword.Classify(msg.Text, &p, isAdmin)
	messageProcessCount.WithLabelValues(out.Verdict.Kind.String()).Inc()
	if out.Verdict.IsClean() {
		return out, nil
	}
	span.SetAttributes(attribute.String("verdict", out.Verdict.Kind.String()))
	logger.Info("content rule matched", "verdict", out.Verdict.Kind, "word", out.Verdict.Word, "url", out.Verdict.URL)

	if err := eng.deleteMessage(ctx, msg.Ref); err != nil {
		// still warn; the message may already be gone
		logger.Warn("failed to delete message", "err", err)
	}

	dec, err := eng.issueWarningLocked(ctx, &p, WarnRequest{
		Group:  msg.Group(),
		User:   msg.Sender,
		Reason: out.Verdict.Reason(),
		Now:    now,
	}, "auto")
	out.Decision = dec
	if dec != nil {
		out.Action = dec.Applied
	}
	return out, err
}

func (eng *Engine) deleteMessage(ctx context.Context, ref chat.MessageRef) error {
	ctx, cancel := context.WithTimeout(ctx, eng.Executor.Timeout)
	defer cancel()
	return eng.Platform.DeleteMessage(ctx, ref)
}

// Admin status only matters when the policy exempts admins from something; skip the lookup otherwise. Lookup errors count as not-admin.
func (eng *Engine) isAdmin(ctx context.Context, logger *slog.Logger, p *policy.GroupPolicy, msg *chat.Message) bool {
	relevant := (p.AntiFlood && p.AdminSkipsFlood()) ||
		(p.AntiSpam && p.AdminSkipsSpam()) ||
		(p.AntiLink && p.AdminSkipsLinks())
	if !relevant {
		return false
	}
	ok, err := eng.Roles.IsAdmin(ctx, msg.Sender, msg.Group())
	if err != nil {
		logger.Warn("admin lookup failed", "err", err)
		return false
	}
	return ok
}

func (eng *Engine) floodMuteDuration() time.Duration {
	if eng.FloodMuteDuration <= 0 {
		return DefaultFloodMuteDuration
	}
	return eng.FloodMuteDuration
}

// Applies an admin-issued action (mute, unmute, kick, ban, unban), serialized with automatic moderation of the same user.
func (eng *Engine) Enforce(ctx context.Context, req enforce.Request) (*ledger.ModerationAction, error) {
	unlock := eng.Locks.LockPair(req.Group, req.User)
	defer unlock()
	if req.Now.IsZero() {
		req.Now = eng.Clock.Now()
	}
	return eng.Executor.Apply(ctx, req)
}
