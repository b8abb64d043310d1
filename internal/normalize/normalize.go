// Package normalize maps concept titles to canonical note identifiers.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/bookzettel/internal/apperr"
	"github.com/starford/bookzettel/internal/models"
)

// maxVerbatimCaps is the longest all-caps token left untouched.
const maxVerbatimCaps = 4

// MaxIDBytes bounds the length of an id so that id plus extension fits in a
// file name on common filesystems.
const MaxIDBytes = 200

// DefaultAcronyms are tokens rewritten to a fixed spelling regardless of input case.
var DefaultAcronyms = []string{"CAPM", "EMH", "ETF", "ETFs", "GDP", "IPO", "IPOs", "REIT", "REITs", "S&P"}

// Normalizer turns titles into canonical ids. The zero value is not usable;
// call New.
type Normalizer struct {
	acronyms map[string]string // lower-case token -> canonical spelling
}

// New returns a Normalizer that keeps DefaultAcronyms plus extra verbatim.
func New(extra ...string) *Normalizer {
	n := &Normalizer{acronyms: make(map[string]string, len(DefaultAcronyms)+len(extra))}
	for _, a := range DefaultAcronyms {
		n.acronyms[strings.ToLower(a)] = a
	}
	for _, a := range extra {
		a = strings.TrimSpace(a)
		if a != "" {
			n.acronyms[strings.ToLower(a)] = a
		}
	}
	return n
}

// Normalize replaces characters that are illegal in filenames with spaces,
// collapses whitespace and title-cases every word. Illegal characters are
// treated as word breaks, so "Bull\x00market" and "Bull Market" share an id.
// Leading dots and trailing dots are dropped and the result is cut to
// MaxIDBytes, so every id names a visible, creatable file.
func (n *Normalizer) Normalize(title string) (models.CanonicalID, error) {
	cleaned := strings.Map(func(r rune) rune {
		if isIllegal(r) {
			return ' '
		}
		return r
	}, title)

	words := strings.Fields(cleaned)
	for i, w := range words {
		words[i] = n.capitalize(w)
	}
	id := trimDots(strings.Join(words, " "))
	if len(id) > MaxIDBytes {
		id = trimDots(truncate(id, MaxIDBytes))
	}
	if id == "" {
		return "", &apperr.InvalidTitleError{Title: title}
	}
	return models.CanonicalID(id), nil
}

// trimDots strips what would hide the file (a leading dot) or what some
// filesystems drop silently (trailing dots and spaces).
func trimDots(s string) string {
	return strings.TrimRight(strings.TrimLeft(s, ". "), ". ")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// MustNormalize is Normalize for inputs already known to be valid. It returns
// the empty id instead of an error.
func (n *Normalizer) MustNormalize(title string) models.CanonicalID {
	id, _ := n.Normalize(title)
	return id
}

func (n *Normalizer) capitalize(word string) string {
	if canon, ok := n.acronyms[strings.ToLower(word)]; ok {
		return canon
	}
	if isShortCaps(word) {
		return word
	}
	var b strings.Builder
	b.Grow(len(word))
	// A leading digit ("3rd", "1990s") suppresses the capital.
	capitalized := false
	for _, r := range word {
		switch {
		case !capitalized && unicode.IsDigit(r):
			capitalized = true
			b.WriteRune(r)
		case !capitalized && unicode.IsLetter(r):
			capitalized = true
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// isShortCaps reports whether word is an all-caps token such as "NYSE" or "FOMC".
func isShortCaps(word string) bool {
	if utf8.RuneCountInString(word) > maxVerbatimCaps {
		return false
	}
	letters := 0
	for _, r := range word {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 0
}

func isIllegal(r rune) bool {
	switch r {
	case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return unicode.IsControl(r)
}
