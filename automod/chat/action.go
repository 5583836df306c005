package chat

import (
	"fmt"
	"strings"
)

// Kind of enforcement action taken against a user in a group.
type ActionKind string

const (
	ActionNone   ActionKind = ""
	ActionMute   ActionKind = "mute"
	ActionKick   ActionKind = "kick"
	ActionBan    ActionKind = "ban"
	ActionUnmute ActionKind = "unmute"
	ActionUnban  ActionKind = "unban"
)

// Parses an action name, case-insensitively. The empty string is not a valid action.
func ParseActionKind(raw string) (ActionKind, error) {
	switch k := ActionKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case ActionMute, ActionKick, ActionBan, ActionUnmute, ActionUnban:
		return k, nil
	default:
		return ActionNone, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, raw)
	}
}

// Whether the action can be chosen as the automatic response to reaching the warning limit.
func (k ActionKind) IsEscalation() bool {
	return k == ActionMute || k == ActionKick || k == ActionBan
}
