package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/automod/enforce"
	"github.com/groupmeg/groupmod/automod/ledger"
	"github.com/groupmeg/groupmod/automod/policy"

	"go.opentelemetry.io/otel/attribute"
)

type WarnRequest struct {
	Group  chat.GroupID
	User   chat.UserID
	Reason string
	// zero for automatic warnings
	IssuedBy chat.UserID
	// defaults to the engine clock
	Now time.Time
}

// Result of issuing one warning.
type Decision struct {
	// warnings for the pair including this one, before any reset
	Count int64
	Limit int
	// ActionNone unless Count reached Limit, in which case the pair's warnings were reset
	Action   chat.ActionKind
	Duration time.Duration
	Reason   string
	// the recorded escalation action, if enforcement succeeded
	Applied *ledger.ModerationAction
}

func (d *Decision) Escalated() bool {
	return d.Action != chat.ActionNone
}

// Records a warning for the pair and, if that brings them to the group's warning limit, resets their warnings and applies the escalation action.
//
// The append, count, and reset commit together. Enforcement happens after commit: if it fails, the returned error matches enforce.ErrEnforcementFailed and the Decision is still returned.
func (eng *Engine) IssueWarning(ctx context.Context, req WarnRequest) (*Decision, error) {
	if req.User == 0 {
		return nil, fmt.Errorf("%w: no user to warn", chat.ErrInvalidInput)
	}
	p, err := eng.Policies.GetPolicy(ctx, req.Group)
	if err != nil {
		return nil, fmt.Errorf("fetching group policy: %w", err)
	}
	unlock := eng.Locks.LockPair(req.Group, req.User)
	defer unlock()
	return eng.issueWarningLocked(ctx, &p, req, "admin")
}

// caller must hold the pair lock
func (eng *Engine) issueWarningLocked(ctx context.Context, p *policy.GroupPolicy, req WarnRequest, source string) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "IssueWarning")
	defer span.End()

	if req.Now.IsZero() {
		req.Now = eng.Clock.Now()
	}
	dec := &Decision{Limit: p.WarnLimit, Reason: req.Reason}
	w := &ledger.Warning{
		GroupID:  req.Group,
		UserID:   req.User,
		Reason:   req.Reason,
		IssuedBy: req.IssuedBy,
		IssuedAt: req.Now,
	}
	// let the ledger write finish even if the caller is shutting down
	count, _, err := eng.Ledger.Warn(context.WithoutCancel(ctx), w, func(count int64) bool {
		dec.Action, dec.Duration = Evaluate(count, p)
		return dec.Escalated()
	})
	if err != nil {
		return nil, err
	}
	dec.Count = count
	warningIssuedCount.WithLabelValues(source).Inc()
	span.SetAttributes(attribute.Int64("count", count), attribute.String("action", string(dec.Action)))

	logger := eng.Logger.With("group", req.Group, "user", req.User)
	if !dec.Escalated() {
		logger.Info("warning issued", "count", count, "limit", p.WarnLimit, "reason", req.Reason)
		return dec, nil
	}

	escalationCount.WithLabelValues(string(dec.Action)).Inc()
	logger.Info("warning limit reached", "count", count, "limit", p.WarnLimit, "action", dec.Action, "duration", dec.Duration)
	act, err := eng.Executor.Apply(ctx, enforce.Request{
		Action:   dec.Action,
		Group:    req.Group,
		User:     req.User,
		Duration: dec.Duration,
		Reason:   "Reached warning limit: " + req.Reason,
		IssuedBy: req.IssuedBy,
		Now:      req.Now,
	})
	dec.Applied = act
	return dec, err
}

// Removes all of a user's warnings in a group. Returns how many were removed.
func (eng *Engine) ClearWarnings(ctx context.Context, group chat.GroupID, user chat.UserID) (int64, error) {
	if user == 0 {
		return 0, fmt.Errorf("%w: no user to clear", chat.ErrInvalidInput)
	}
	unlock := eng.Locks.LockPair(group, user)
	defer unlock()
	return eng.Ledger.ClearWarnings(context.WithoutCancel(ctx), group, user)
}
