// Package parser extracts front-matter, wikilinks, and tags from Markdown notes.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/adrg/frontmatter"
)

// NoLinksMarker is rendered in place of an empty related-concepts list.
const NoLinksMarker = "- No direct links identified"

var (
	// A marker is [[name]] where name is non-empty and holds no bracket or newline.
	wikilinkRe = regexp.MustCompile(`\[\[([^\[\]\n]+)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Result holds the output of parsing a Markdown note.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Links       []string
	Tags        []string
	Title       string
}

// Field returns a front-matter value rendered as a string, or "" when absent.
func (r *Result) Field(key string) string {
	if r == nil || r.Frontmatter == nil {
		return ""
	}
	v, ok := r.Frontmatter[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Parse extracts front-matter, body, wikilinks, and tags from raw Markdown bytes.
// Malformed front-matter is not an error: the whole input is treated as body.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       ExtractLinks(body),
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
	}, nil
}

func splitFrontmatter(data []byte) (map[string]any, string) {
	var fm map[string]any
	body, err := frontmatter.Parse(bytes.NewReader(data), &fm)
	if err != nil {
		return nil, string(data)
	}
	if len(fm) == 0 {
		fm = nil
	}
	return fm, strings.TrimLeft(string(body), "\n\r")
}

// ExtractLinks returns the distinct wikilink targets of body in first-seen
// order. Aliases ([[Target|Alias]]) resolve to Target. Malformed brackets
// yield no links.
func ExtractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// RewriteLinks replaces the target of every wikilink in body with
// resolve(target). When the resolved target differs from the written text the
// original text is kept as the alias. Targets resolve reports false for are
// left as written.
func RewriteLinks(body string, resolve func(target string) (string, bool)) string {
	return ReplaceLinks(body, func(target, alias string) (string, bool) {
		canon, ok := resolve(target)
		if !ok || canon == target {
			return "", false
		}
		if alias == "" {
			alias = target
		}
		return "[[" + canon + "|" + alias + "]]", true
	})
}

// ReplaceLinks calls fn for every wikilink in body with its trimmed target
// and alias (empty when absent) and substitutes the returned text. Markers
// fn reports false for are kept as written.
func ReplaceLinks(body string, fn func(target, alias string) (string, bool)) string {
	return wikilinkRe.ReplaceAllStringFunc(body, func(marker string) string {
		inner := marker[2 : len(marker)-2]
		target, alias := inner, ""
		if i := strings.Index(inner, "|"); i >= 0 {
			target, alias = inner[:i], inner[i+1:]
		}
		out, ok := fn(strings.TrimSpace(target), alias)
		if !ok {
			return marker
		}
		return out
	})
}

// FormatLinkList renders links as a Markdown bullet list of wikilinks.
func FormatLinkList(links []string) string {
	if len(links) == 0 {
		return NoLinksMarker
	}
	var b strings.Builder
	for i, l := range links {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- [[")
		b.WriteString(l)
		b.WriteString("]]")
	}
	return b.String()
}

// extractTags collects tags from the front-matter "tags" field and inline #tags.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimPrefix(strings.TrimSpace(s), "#")
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if raw, ok := fm["tags"]; ok {
		switch v := raw.(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				add(s)
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the front-matter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if t, ok := fm["title"].(string); ok && t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
