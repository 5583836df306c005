package keyword

import (
	"strings"

	"github.com/groupmeg/groupmod/automod/policy"

	"golang.org/x/text/cases"
)

// Used for groups which have not configured their own list.
var DefaultBannedWords = []string{
	"badword1",
	"badword2",
	"badword3",
	"spam",
	"scam",
	"hate",
	"violence",
}

// Runs the content rules against message text, in order: banned word, excessive symbols (both gated by AntiSpam), then unauthorized link (gated by AntiLink). The first rule to match wins.
//
// isAdmin is whether the sender administers the group; which rules that skips is decided by the policy's AdminExemption.
func Classify(text string, p *policy.GroupPolicy, isAdmin bool) Verdict {
	if p.AntiSpam && !(isAdmin && p.AdminSkipsSpam()) {
		words := p.BannedWords
		if len(words) == 0 {
			words = DefaultBannedWords
		}
		if w := MatchBannedWord(text, words); w != "" {
			return Verdict{Kind: BannedWord, Word: w}
		}
		if CountSymbols(text) > SymbolLimit {
			return Verdict{Kind: ExcessiveSymbols}
		}
	}
	if p.AntiLink && !(isAdmin && p.AdminSkipsLinks()) {
		if u, ok := FindLink(text); ok {
			return Verdict{Kind: UnauthorizedLink, URL: u}
		}
	}
	return Verdict{Kind: Clean}
}

// Returns the first word from the list (in list order) which appears anywhere in the text, ignoring case. Returns empty string if none match.
func MatchBannedWord(text string, words []string) string {
	// a Caser holds state, so one per call
	fold := cases.Fold()
	folded := fold.String(text)
	for _, w := range words {
		if w == "" {
			continue
		}
		if strings.Contains(folded, fold.String(w)) {
			return w
		}
	}
	return ""
}
