// Package render loads note templates and substitutes a fixed whitelist of
// {{PLACEHOLDER}} tokens. Tokens outside the whitelist pass through untouched.
package render

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/starford/bookzettel/internal/apperr"
	"github.com/starford/bookzettel/internal/parser"
)

// Recognized placeholder names.
const (
	Title     = "TITLE"
	Summary   = "SUMMARY"
	Examples  = "EXAMPLES"
	Links     = "LINKS"
	Chapter   = "CHAPTER"
	Tags      = "TAGS"
	Created   = "CREATED"
	BookTitle = "BOOK_TITLE"
)

// Fallback strings for recognized placeholders without data.
const (
	NoExamples = "*No specific examples provided in the source material.*"
	NoSummary  = "*No summary provided.*"
	NoLinks    = parser.NoLinksMarker
	NoSource   = "Unknown Source"
)

// DefaultTemplate is used when no template file is configured.
const DefaultTemplate = `---
created: {{CREATED}}
in: "[[{{BOOK_TITLE}}]]"
chapter: "{{CHAPTER}}"
tags: [{{TAGS}}]
---

# {{TITLE}}

## Summary
{{SUMMARY}}

## Examples and Elaboration
{{EXAMPLES}}

## Related Concepts
{{LINKS}}

**Source:** [[{{BOOK_TITLE}}]]
`

var placeholderRe = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// Values carries the data for one rendering.
type Values struct {
	Title     string
	Summary   string
	Examples  string
	Links     string
	Chapter   string
	Tags      string
	Created   string
	BookTitle string
}

type resolver func(Values) string

func orElse(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// resolvers is the whitelist. CHAPTER and TAGS render empty on purpose: both
// land in front-matter, where an empty value is the correct encoding.
var resolvers = map[string]resolver{
	Title:     func(v Values) string { return v.Title },
	Summary:   func(v Values) string { return orElse(v.Summary, NoSummary) },
	Examples:  func(v Values) string { return orElse(v.Examples, NoExamples) },
	Links:     func(v Values) string { return orElse(v.Links, NoLinks) },
	Chapter:   func(v Values) string { return v.Chapter },
	Tags:      func(v Values) string { return v.Tags },
	Created:   func(v Values) string { return v.Created },
	BookTitle: func(v Values) string { return orElse(v.BookTitle, NoSource) },
}

// Recognized reports whether name is a whitelisted placeholder.
func Recognized(name string) bool {
	_, ok := resolvers[name]
	return ok
}

// Template is a validated note template.
type Template struct {
	Path   string
	Source string
}

// Default returns the built-in template.
func Default() *Template {
	return &Template{Source: DefaultTemplate}
}

// LoadTemplate reads and validates the template at path. An empty path
// yields the built-in template.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apperr.TemplateError{Path: path, Reason: "read", Err: err}
	}
	return Parse(path, string(data))
}

// Parse validates src. A template must open with a front-matter block
// delimited by "---" lines; the catalog and the map of content read it back.
func Parse(path, src string) (*Template, error) {
	if strings.TrimSpace(src) == "" {
		return Default(), nil
	}
	if err := checkFrontmatter(src); err != nil {
		return nil, &apperr.TemplateError{Path: path, Reason: "structure", Err: err}
	}
	return &Template{Path: path, Source: src}, nil
}

func checkFrontmatter(src string) error {
	src = strings.TrimPrefix(src, "\ufeff")
	src = strings.ReplaceAll(src, "\r\n", "\n")
	if !strings.HasPrefix(src, "---\n") {
		return errors.New("missing opening front-matter delimiter")
	}
	rest := src[len("---\n"):]
	if !strings.HasPrefix(rest, "---\n") && !strings.Contains(rest, "\n---\n") && !strings.HasSuffix(rest, "\n---") {
		return errors.New("missing closing front-matter delimiter")
	}
	return nil
}

// Render substitutes every recognized placeholder in one pass. Inserted
// values are never rescanned, so a summary containing "{{TITLE}}" stays literal.
func (t *Template) Render(v Values) string {
	return placeholderRe.ReplaceAllStringFunc(t.Source, func(token string) string {
		name := token[2 : len(token)-2]
		if r, ok := resolvers[name]; ok {
			return r(v)
		}
		return token
	})
}

// Unrecognized lists placeholder tokens in the template that Render leaves verbatim.
func (t *Template) Unrecognized() []string {
	var out []string
	seen := map[string]struct{}{}
	for _, m := range placeholderRe.FindAllStringSubmatch(t.Source, -1) {
		if Recognized(m[1]) {
			continue
		}
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// String implements fmt.Stringer.
func (t *Template) String() string {
	if t.Path == "" {
		return "<built-in>"
	}
	return fmt.Sprintf("template(%s)", t.Path)
}
