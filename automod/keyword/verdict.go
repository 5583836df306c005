package keyword

import "fmt"

type VerdictKind int

const (
	Clean VerdictKind = iota
	BannedWord
	ExcessiveSymbols
	UnauthorizedLink
)

func (k VerdictKind) String() string {
	switch k {
	case Clean:
		return "clean"
	case BannedWord:
		return "banned-word"
	case ExcessiveSymbols:
		return "excessive-symbols"
	case UnauthorizedLink:
		return "unauthorized-link"
	default:
		return fmt.Sprintf("verdict(%d)", int(k))
	}
}

// Result of classifying one message. At most one rule fires per message.
type Verdict struct {
	Kind VerdictKind
	// matched banned word, for BannedWord
	Word string
	// normalized matched URL, for UnauthorizedLink
	URL string
}

func (v Verdict) IsClean() bool {
	return v.Kind == Clean
}

// Human-readable reason, recorded on the warning issued for this verdict.
func (v Verdict) Reason() string {
	switch v.Kind {
	case BannedWord:
		return "Using inappropriate word: " + v.Word
	case ExcessiveSymbols:
		return "Excessive emoji usage"
	case UnauthorizedLink:
		return "Posting external links"
	default:
		return ""
	}
}
