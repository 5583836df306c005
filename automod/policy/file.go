package policy

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
)

// On-disk form of a GroupPolicy. Omitted fields inherit from the file's default entry.
type policyJSON struct {
	AntiFlood           *bool    `json:"antiflood,omitempty"`
	AntiSpam            *bool    `json:"antispam,omitempty"`
	AntiLink            *bool    `json:"antilink,omitempty"`
	WarnLimit           *int     `json:"warn_limit,omitempty"`
	MuteDurationSeconds *int64   `json:"mute_duration_seconds,omitempty"`
	EscalationAction    *string  `json:"escalation_action,omitempty"`
	BannedWords         []string `json:"banned_words,omitempty"`
	AdminExemption      *string  `json:"admin_exemption,omitempty"`
}

type policyFileJSON struct {
	Default *policyJSON            `json:"default,omitempty"`
	Groups  map[string]*policyJSON `json:"groups,omitempty"`
}

func (pj *policyJSON) apply(base GroupPolicy) GroupPolicy {
	p := base
	if pj == nil {
		return p
	}
	if pj.AntiFlood != nil {
		p.AntiFlood = *pj.AntiFlood
	}
	if pj.AntiSpam != nil {
		p.AntiSpam = *pj.AntiSpam
	}
	if pj.AntiLink != nil {
		p.AntiLink = *pj.AntiLink
	}
	if pj.WarnLimit != nil {
		p.WarnLimit = *pj.WarnLimit
	}
	if pj.MuteDurationSeconds != nil {
		p.MuteDuration = time.Duration(*pj.MuteDurationSeconds) * time.Second
	}
	if pj.EscalationAction != nil {
		p.EscalationAction = chat.ActionKind(*pj.EscalationAction)
	}
	if pj.BannedWords != nil {
		p.BannedWords = pj.BannedWords
	}
	if pj.AdminExemption != nil {
		p.AdminExemption = Exemption(*pj.AdminExemption)
	}
	return p
}

// Reads policies from a JSON file of the form:
//
//	{"default": {...}, "groups": {"-1001234": {"warn_limit": 5, "banned_words": ["crypto"]}}}
//
// Group entries inherit omitted fields from the default entry, which itself inherits from Default(). Every entry is validated.
func ReadFileJSON(p string) (GroupPolicy, map[chat.GroupID]GroupPolicy, error) {

	f, err := os.Open(p)
	if err != nil {
		return GroupPolicy{}, nil, err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return GroupPolicy{}, nil, err
	}

	var doc policyFileJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return GroupPolicy{}, nil, err
	}

	fallback, err := doc.Default.apply(Default()).Normalize()
	if err != nil {
		return GroupPolicy{}, nil, fmt.Errorf("default policy: %w", err)
	}
	groups := make(map[chat.GroupID]GroupPolicy, len(doc.Groups))
	for name, pj := range doc.Groups {
		id, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			return GroupPolicy{}, nil, fmt.Errorf("%w: group id %q", chat.ErrInvalidInput, name)
		}
		gp, err := pj.apply(fallback).Normalize()
		if err != nil {
			return GroupPolicy{}, nil, fmt.Errorf("policy for group %s: %w", name, err)
		}
		groups[chat.GroupID(id)] = gp
	}
	return fallback, groups, nil
}

// Loads policies with ReadFileJSON. A single bad entry fails the whole load and leaves the store untouched.
func (s *MemPolicyStore) LoadFromFileJSON(p string) error {
	fallback, groups, err := ReadFileJSON(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fallback = fallback
	for id, gp := range groups {
		s.groups[id] = gp
	}
	return nil
}
