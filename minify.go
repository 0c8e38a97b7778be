package livewire

import (
	"regexp"
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	newlinePattern    = regexp.MustCompile(`[\r\n]+`)
	spaceAroundTags   = regexp.MustCompile(`>\s+<`)
)

// minifyFragment collapses whitespace in an HTML fragment. Fragments here
// are statics, which can start or end mid-tag, so a tag-aware minifier
// cannot be used on them; the regexes only touch whitespace.
func minifyFragment(fragment string) string {
	if len(fragment) <= 3 {
		return fragment
	}

	// A boundary space can be significant next to the neighboring dynamic,
	// so it collapses to one space instead of disappearing.
	hasLeading := fragment[0] == ' ' || fragment[0] == '\t' || fragment[0] == '\n' || fragment[0] == '\r'
	last := fragment[len(fragment)-1]
	hasTrailing := last == ' ' || last == '\t' || last == '\n' || last == '\r'

	fragment = newlinePattern.ReplaceAllString(fragment, " ")
	fragment = whitespacePattern.ReplaceAllString(fragment, " ")
	fragment = spaceAroundTags.ReplaceAllString(fragment, "><")

	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" {
		return trimmed
	}
	if hasLeading {
		trimmed = " " + trimmed
	}
	if hasTrailing {
		trimmed = trimmed + " "
	}
	return trimmed
}

// minifyStatics minifies a statics slice in place of a copy, leaving short
// strings and attribute values alone.
func minifyStatics(statics []string) []string {
	minified := make([]string, len(statics))
	for i, static := range statics {
		switch {
		case strings.Contains(static, "<") || strings.Contains(static, ">"):
			minified[i] = minifyFragment(static)
		case strings.Contains(static, "\n") || strings.Contains(static, "\t"):
			minified[i] = minifyFragment(static)
		default:
			minified[i] = static
		}
	}
	return minified
}

var (
	htmlMinifier     *minify.M
	htmlMinifierOnce sync.Once
)

// MinifyHTML minifies a complete, balanced HTML document or fragment. On a
// parse failure the input comes back unchanged.
func MinifyHTML(markup string) string {
	htmlMinifierOnce.Do(func() {
		htmlMinifier = minify.New()
		htmlMinifier.AddFunc("text/html", html.Minify)
	})

	minified, err := htmlMinifier.String("text/html", markup)
	if err != nil {
		return markup
	}
	return minified
}
