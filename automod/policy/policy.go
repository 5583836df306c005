package policy

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
)

// Which checks group admins are exempt from.
type Exemption string

const (
	// admins skip only the link rule
	ExemptLinks Exemption = "links"
	// admins skip flood detection and every content rule
	ExemptAll Exemption = "all"
	// admins are moderated like everybody else
	ExemptNone Exemption = "none"
)

const (
	DefaultWarnLimit    = 3
	DefaultMuteDuration = 300 * time.Second
)

// Per-group moderation configuration. Read-only to the engine; always validated with Normalize before being handed out by a PolicyStore.
type GroupPolicy struct {
	AntiFlood        bool
	AntiSpam         bool
	AntiLink         bool
	WarnLimit        int
	MuteDuration     time.Duration
	EscalationAction chat.ActionKind
	// lower-case, de-duplicated, in configured order. Empty means the built-in list.
	BannedWords    []string
	AdminExemption Exemption
}

func Default() GroupPolicy {
	return GroupPolicy{
		AntiFlood:        true,
		AntiSpam:         true,
		AntiLink:         false,
		WarnLimit:        DefaultWarnLimit,
		MuteDuration:     DefaultMuteDuration,
		EscalationAction: chat.ActionMute,
		AdminExemption:   ExemptLinks,
	}
}

// Validates the policy and returns a canonical copy: banned words folded to lower case and de-duplicated, unset enum fields filled with defaults.
func (p GroupPolicy) Normalize() (GroupPolicy, error) {
	if p.WarnLimit < 1 {
		return p, fmt.Errorf("%w: warn limit must be at least 1, got %d", chat.ErrInvalidInput, p.WarnLimit)
	}
	if p.MuteDuration < 0 {
		return p, fmt.Errorf("%w: negative mute duration %s", chat.ErrInvalidInput, p.MuteDuration)
	}
	if p.EscalationAction == chat.ActionNone {
		p.EscalationAction = chat.ActionMute
	}
	if !p.EscalationAction.IsEscalation() {
		return p, fmt.Errorf("%w: escalation action must be mute, kick, or ban, got %q", chat.ErrInvalidInput, p.EscalationAction)
	}
	switch p.AdminExemption {
	case "":
		p.AdminExemption = ExemptLinks
	case ExemptLinks, ExemptAll, ExemptNone:
	default:
		return p, fmt.Errorf("%w: unknown admin exemption %q", chat.ErrInvalidInput, p.AdminExemption)
	}

	words := make([]string, 0, len(p.BannedWords))
	for _, w := range p.BannedWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || slices.Contains(words, w) {
			continue
		}
		words = append(words, w)
	}
	p.BannedWords = words
	return p, nil
}

// Whether an admin skips flood detection.
func (p *GroupPolicy) AdminSkipsFlood() bool {
	return p.AdminExemption == ExemptAll
}

// Whether an admin skips the banned word and symbol rules.
func (p *GroupPolicy) AdminSkipsSpam() bool {
	return p.AdminExemption == ExemptAll
}

// Whether an admin skips the link rule.
func (p *GroupPolicy) AdminSkipsLinks() bool {
	return p.AdminExemption == ExemptAll || p.AdminExemption == ExemptLinks
}
