package engine

import (
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/automod/policy"
)

// Maps a pair's warning count (including the warning just issued) to the action to take. Below the limit nothing happens; at or above it the group's escalation action applies. Only mute carries a duration.
func Evaluate(count int64, p *policy.GroupPolicy) (chat.ActionKind, time.Duration) {
	if count < int64(p.WarnLimit) {
		return chat.ActionNone, 0
	}
	action := p.EscalationAction
	if !action.IsEscalation() {
		action = chat.ActionMute
	}
	if action == chat.ActionMute {
		return action, p.MuteDuration
	}
	return action, 0
}
