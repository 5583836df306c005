package enforce

import (
	"errors"
	"fmt"

	"github.com/groupmeg/groupmod/automod/chat"
)

// Matched (via errors.Is) by every error from a rejected or timed-out platform call.
var ErrEnforcementFailed = errors.New("enforcement failed")

type EnforcementError struct {
	Action chat.ActionKind
	Group  chat.GroupID
	User   chat.UserID
	Cause  error
}

func (e *EnforcementError) Error() string {
	return fmt.Sprintf("enforcement failed: %s user %s in group %s: %v", e.Action, e.User, e.Group, e.Cause)
}

func (e *EnforcementError) Unwrap() error {
	return e.Cause
}

func (e *EnforcementError) Is(target error) bool {
	return target == ErrEnforcementFailed
}
