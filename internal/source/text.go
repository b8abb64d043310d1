package source

import (
	"context"
	"os"
	"strings"

	"github.com/starford/bookzettel/internal/apperr"
)

// Text reads plain-text or Markdown books. Pages are separated by form feeds;
// a file without any is a single page.
type Text struct{}

// Extract implements Extractor.
func (Text) Extract(ctx context.Context, source string, start, end int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &apperr.ExtractionError{Source: source, Err: err}
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return "", &apperr.ExtractionError{Source: source, Err: err}
	}
	pages := strings.Split(string(data), "\f")
	if err := checkRange(start, end, len(pages)); err != nil {
		return "", &apperr.ExtractionError{Source: source, Err: err}
	}
	return joinPages(source, pages[start:end+1])
}
