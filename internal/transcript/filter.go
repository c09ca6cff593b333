// Package transcript pushes speech-to-text results back to the speaker's own
// signaling connection, dropping the filler phrases speech models tend to
// hallucinate on silence.
package transcript

import (
	"slices"
	"strings"
	"unicode/utf8"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// bannedPhrases are dropped when a transcript consists of nothing else.
var bannedPhrases = []string{
	"thank you", "thanks", "bye", "peace", "shush", "okay",
	"silence", "you", "copyright", "mbc news", "subtitles",
	"watching", "amara.org", "closed captioning",
	"transcribed by https://otter.ai",
}

// defaultBlocklist is dropped wherever it appears in a transcript.
var defaultBlocklist = []string{
	"thank you for watching",
	"дякую",
}

// Filter decides whether a transcript is real speech. It is safe for
// concurrent use once built.
type Filter struct {
	matcher *goahocorasick.Machine
}

// NewFilter builds a filter with the default blocklist plus extra.
func NewFilter(extra []string) (*Filter, error) {
	phrases := lo.Uniq(lo.FilterMap(append(append([]string(nil), defaultBlocklist...), extra...), func(p string, _ int) (string, bool) {
		p = strings.ToLower(strings.TrimSpace(p))
		return p, p != ""
	}))
	slices.Sort(phrases)
	patterns := lo.Map(phrases, func(p string, _ int) []rune { return []rune(p) })

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Filter{matcher: m}, nil
}

// Ignore reports whether text should be dropped instead of shown to the user.
func (f *Filter) Ignore(text string) bool {
	clean := strings.ToLower(strings.TrimSpace(text))
	if clean == "" {
		return true
	}
	if len(f.matcher.MultiPatternSearch([]rune(clean), true)) > 0 {
		return true
	}

	clean = strings.TrimSuffix(clean, ".")
	if utf8.RuneCountInString(clean) <= 2 {
		return true
	}
	if lo.ContainsBy(bannedPhrases, func(banned string) bool {
		return clean == banned || strings.HasPrefix(clean, banned+".")
	}) {
		return true
	}
	// Repetition loops such as "Thank you. Thank you. Thank you."
	return strings.Count(clean, "thank") > 1
}
