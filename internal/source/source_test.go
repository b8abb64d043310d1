package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/bookzettel/internal/apperr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestClean(t *testing.T) {
	raw := "Random walk theory says   prices\n\n\n\nare unpredict-\n  able over time.\n12\nIV\nA Random Walk Down Wall Street\n"
	got := Clean(raw)
	want := "Random walk theory says prices\nare unpredictable over time.\nA Random Walk Down Wall Street"
	assert.Equal(t, want, got)
}

func TestClean_DropsDigitLines(t *testing.T) {
	assert.Equal(t, "Chapter body text", Clean("1234\nChapter body text\n  56789  "))
}

func TestText_PageRange(t *testing.T) {
	path := writeFile(t, "book.txt", "Page zero text here\fPage one text here\fPage two text here")

	got, err := Text{}.Extract(context.Background(), path, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "Page one text here\nPage two text here", got)

	got, err = Text{}.Extract(context.Background(), path, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Page zero text here", got)
}

func TestText_InvalidRange(t *testing.T) {
	path := writeFile(t, "book.txt", "only page with text")
	for _, r := range [][2]int{{-1, 0}, {0, 1}, {1, 0}} {
		_, err := Text{}.Extract(context.Background(), path, r[0], r[1])
		var ee *apperr.ExtractionError
		require.True(t, errors.As(err, &ee), "range %v: err = %v", r, err)
		assert.Equal(t, path, ee.Source)
	}
}

func TestText_EmptyAfterCleanup(t *testing.T) {
	path := writeFile(t, "book.txt", "12\n\n34\n")
	_, err := Text{}.Extract(context.Background(), path, 0, 0)
	assert.ErrorIs(t, err, apperr.ErrExtraction)
}

func TestText_MissingFile(t *testing.T) {
	_, err := Text{}.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), 0, 0)
	assert.ErrorIs(t, err, apperr.ErrExtraction)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestText_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Text{}.Extract(ctx, writeFile(t, "b.txt", "some text here"), 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPDF_NotAPDF(t *testing.T) {
	path := writeFile(t, "book.pdf", "this is not a pdf")
	_, err := PDF{}.Extract(context.Background(), path, 0, 0)
	assert.ErrorIs(t, err, apperr.ErrExtraction)
}

func TestAuto_Dispatch(t *testing.T) {
	a := &Auto{PDF: stubExtractor("pdf"), Text: stubExtractor("text")}
	got, err := a.Extract(context.Background(), "Book.PDF", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "pdf", got)

	got, err = a.Extract(context.Background(), "book.md", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "text", got)
}

type stubExtractor string

func (s stubExtractor) Extract(context.Context, string, int, int) (string, error) {
	return string(s), nil
}
