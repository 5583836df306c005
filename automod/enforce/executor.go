// Applies moderation actions against the chat platform, and records the ones which succeed in the moderation log.
package enforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/automod/ledger"
)

// Bound on each platform call made by Apply.
const DefaultTimeout = 10 * time.Second

type Request struct {
	Action chat.ActionKind
	Group  chat.GroupID
	User   chat.UserID
	// only meaningful for mute
	Duration time.Duration
	Reason   string
	IssuedBy chat.UserID
	Now      time.Time
}

type Executor struct {
	Platform chat.Platform
	Ledger   *ledger.Ledger
	Timeout  time.Duration
	Logger   *slog.Logger
	// optional; told about every recorded action
	Notifier Notifier
}

func NewExecutor(platform chat.Platform, ldg *ledger.Ledger, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		Platform: platform,
		Ledger:   ldg,
		Timeout:  DefaultTimeout,
		Logger:   logger.With("component", "enforce"),
	}
}

// Applies one action: a single attempt at the platform call(s), under the executor timeout, with no retries.
//
// On platform failure the returned error matches ErrEnforcementFailed and no log row is written. Unmute and unban of a user the platform does not know about are no-ops, returning a nil action and nil error.
func (x *Executor) Apply(ctx context.Context, req Request) (*ledger.ModerationAction, error) {
	if req.User == 0 || req.Group == 0 {
		return nil, fmt.Errorf("%w: enforcement needs a group and a user", chat.ErrInvalidInput)
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	logger := x.Logger.With("action", req.Action, "group", req.Group, "user", req.User)

	start := time.Now()
	err := x.callPlatform(ctx, req)
	enforcementDuration.WithLabelValues(string(req.Action)).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, chat.ErrInvalidInput) {
			return nil, err
		}
		if (req.Action == chat.ActionUnmute || req.Action == chat.ActionUnban) && errors.Is(err, chat.ErrNotFound) {
			enforcementCount.WithLabelValues(string(req.Action), "noop").Inc()
			logger.Info("nothing to undo", "err", err)
			return nil, nil
		}
		enforcementCount.WithLabelValues(string(req.Action), "failed").Inc()
		logger.Warn("enforcement failed", "err", err)
		return nil, &EnforcementError{Action: req.Action, Group: req.Group, User: req.User, Cause: err}
	}
	enforcementCount.WithLabelValues(string(req.Action), "ok").Inc()

	act := &ledger.ModerationAction{
		GroupID:  req.Group,
		UserID:   req.User,
		Kind:     req.Action,
		Reason:   req.Reason,
		IssuedBy: req.IssuedBy,
		IssuedAt: req.Now,
	}
	if req.Action == chat.ActionMute {
		act.DurationSeconds = int64(req.Duration / time.Second)
	}
	// the platform change already happened; record it even if the caller is going away
	if err := x.Ledger.RecordAction(context.WithoutCancel(ctx), act); err != nil {
		logger.Error("action applied but not recorded", "err", err)
		return nil, err
	}
	logger.Info("applied moderation action", "duration", req.Duration, "reason", req.Reason)

	if x.Notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.timeout())
			defer cancel()
			if err := x.Notifier.SendAction(nctx, act); err != nil {
				logger.Error("sending action notification", "err", err)
			}
		}()
	}
	return act, nil
}

func (x *Executor) timeout() time.Duration {
	if x.Timeout <= 0 {
		return DefaultTimeout
	}
	return x.Timeout
}

func (x *Executor) callPlatform(ctx context.Context, req Request) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout())
	defer cancel()

	switch req.Action {
	case chat.ActionMute:
		return x.Platform.Restrict(ctx, req.Group, req.User, req.Now.Add(req.Duration))
	case chat.ActionKick:
		if err := x.Platform.Remove(ctx, req.Group, req.User); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				x.liftKickBan(ctx, req)
			}
			return err
		}
		// lift the ban residue so they may rejoin
		return x.Platform.Unban(ctx, req.Group, req.User)
	case chat.ActionBan:
		return x.Platform.Remove(ctx, req.Group, req.User)
	case chat.ActionUnmute:
		return x.Platform.Unrestrict(ctx, req.Group, req.User)
	case chat.ActionUnban:
		return x.Platform.Unban(ctx, req.Group, req.User)
	default:
		return fmt.Errorf("%w: unknown action %q", chat.ErrInvalidInput, req.Action)
	}
}

// A timed-out ban may still land on the platform side; unban so a failed kick never leaves a permanent ban.
func (x *Executor) liftKickBan(ctx context.Context, req Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.timeout())
	defer cancel()
	if err := x.Platform.Unban(ctx, req.Group, req.User); err != nil && !errors.Is(err, chat.ErrNotFound) {
		x.Logger.Warn("lifting ban after failed kick", "group", req.Group, "user", req.User, "err", err)
	}
}
