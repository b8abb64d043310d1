// Package source extracts cleaned plain text from a page range of a book.
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/bookzettel/internal/apperr"
)

// Extractor returns the cleaned text of pages start..end (0-indexed,
// inclusive) of source. Failures are *apperr.ExtractionError.
type Extractor interface {
	Extract(ctx context.Context, source string, start, end int) (string, error)
}

// Auto dispatches on the file extension: ".pdf" goes to PDF, everything else
// to Text.
type Auto struct {
	PDF  Extractor
	Text Extractor
}

// NewAuto returns an Auto with the default PDF and text extractors.
func NewAuto() *Auto {
	return &Auto{PDF: PDF{}, Text: Text{}}
}

// Extract implements Extractor.
func (a *Auto) Extract(ctx context.Context, source string, start, end int) (string, error) {
	if strings.EqualFold(filepath.Ext(source), ".pdf") {
		return a.PDF.Extract(ctx, source, start, end)
	}
	return a.Text.Extract(ctx, source, start, end)
}

// checkRange validates a 0-indexed inclusive range against a page count.
func checkRange(start, end, pages int) error {
	if start < 0 || end < start || end >= pages {
		return fmt.Errorf("page range %d-%d is invalid for a document with %d pages", start, end, pages)
	}
	return nil
}

// joinPages cleans the concatenated pages and fails when nothing survives.
func joinPages(source string, pages []string) (string, error) {
	text := Clean(strings.Join(pages, "\n"))
	if text == "" {
		return "", &apperr.ExtractionError{Source: source, Err: fmt.Errorf("no text in page range")}
	}
	return text, nil
}

var (
	blankRunRe  = regexp.MustCompile(`\n\s*\n\s*\n+`)
	spaceRunRe  = regexp.MustCompile(` +`)
	hyphenateRe = regexp.MustCompile(`-\s*\n\s*`)
)

// minLineLen is the shortest line kept; shorter lines are usually page
// numbers or running headers.
const minLineLen = 4

// Clean collapses blank-line and space runs, rejoins words hyphenated across
// line breaks and drops short or digit-only lines.
func Clean(text string) string {
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = hyphenateRe.ReplaceAllString(text, "")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len([]rune(line)) < minLineLen || isDigits(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
