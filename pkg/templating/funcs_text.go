package templating

import (
	"html"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// moreMarker is the author-placed cut point for excerpts.
	moreMarker = regexp.MustCompile(`(?i)<!--more-->`)

	stripPolicyOnce sync.Once
	stripPolicy     *bluemonday.Policy
)

func textSanitizer() *bluemonday.Policy {
	stripPolicyOnce.Do(func() {
		stripPolicy = bluemonday.StrictPolicy()
	})
	return stripPolicy
}

// StripTags removes every HTML tag from s and decodes entities, leaving plain
// text for the template engine to escape.
func StripTags(s string) string {
	return html.UnescapeString(textSanitizer().Sanitize(s))
}

// Excerpt returns a plain-text summary of text.
//
// If text contains a "<!--more-->" marker the summary is everything before
// it. Otherwise text longer than maxLength characters is cut so that, with
// suffix appended, it fits in maxLength, and then shortened to the last space
// so no word is split. A non-positive maxLength disables shortening.
func Excerpt(text string, maxLength int, suffix string) string {
	if loc := moreMarker.FindStringIndex(text); loc != nil {
		return StripTags(text[:loc[0]])
	}

	text = StripTags(text)
	if maxLength <= 0 || utf8.RuneCountInString(text) <= maxLength {
		return text
	}

	runes := []rune(text)
	keep := maxLength - utf8.RuneCountInString(suffix)
	if keep <= 0 {
		// No room for the suffix; a hard cut is the best that fits.
		return string(runes[:maxLength])
	}

	cut := string(runes[:keep])
	if lastSpace := strings.LastIndexByte(cut, ' '); lastSpace >= 0 {
		cut = cut[:lastSpace]
	}
	return cut + suffix
}
