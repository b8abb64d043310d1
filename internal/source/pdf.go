package source

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/starford/bookzettel/internal/apperr"
)

// PDF extracts text from PDF files.
type PDF struct{}

// Extract implements Extractor.
func (PDF) Extract(ctx context.Context, source string, start, end int) (text string, err error) {
	defer func() {
		// The PDF reader panics on some malformed streams.
		if r := recover(); r != nil {
			text, err = "", &apperr.ExtractionError{Source: source, Err: fmt.Errorf("malformed pdf: %v", r)}
		}
	}()

	f, r, err := pdf.Open(source)
	if err != nil {
		return "", &apperr.ExtractionError{Source: source, Err: err}
	}
	defer f.Close()

	if err := checkRange(start, end, r.NumPage()); err != nil {
		return "", &apperr.ExtractionError{Source: source, Err: err}
	}

	pages := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		if err := ctx.Err(); err != nil {
			return "", &apperr.ExtractionError{Source: source, Err: err}
		}
		p := r.Page(i + 1)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", &apperr.ExtractionError{Source: source, Err: fmt.Errorf("page %d: %w", i, err)}
		}
		pages = append(pages, content)
	}
	return joinPages(source, pages)
}
