package keyword

import (
	"regexp"

	"github.com/PuerkitoBio/purell"
)

var linkRegex = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://\S+`)

// Finds the first "scheme://..." URL in the text. The returned URL is normalized for logging; if normalization fails the raw match is returned.
func FindLink(text string) (string, bool) {
	raw := linkRegex.FindString(text)
	if raw == "" {
		return "", false
	}
	clean, err := purell.NormalizeURLString(raw, purell.FlagsUsuallySafeGreedy|purell.FlagRemoveDuplicateSlashes)
	if err != nil {
		return raw, true
	}
	return clean, true
}
