// Package compiler turns concept records into rendered note artifacts.
// Compilation is pure: nothing here touches the filesystem.
package compiler

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/normalize"
	"github.com/starford/bookzettel/internal/parser"
	"github.com/starford/bookzettel/internal/render"
)

// TimestampLayout is the textual form of the created field.
const TimestampLayout = "2006-01-02 15:04:05"

// Compiler compiles concept records against a run context.
type Compiler struct {
	normalizer *normalize.Normalizer
	now        func() time.Time
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithClock overrides the clock used for the created timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Compiler) {
		c.now = now
	}
}

// New creates a Compiler using n for ids and link targets.
func New(n *normalize.Normalizer, opts ...Option) *Compiler {
	c := &Compiler{normalizer: n, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile renders rec with the template carried by rc. Errors are either an
// *apperr.InvalidTitleError for the record or an *apperr.TemplateError for the run.
func (c *Compiler) Compile(rec models.ConceptRecord, rc models.RunContext) (*models.NoteArtifact, error) {
	id, err := c.normalizer.Normalize(rec.Title)
	if err != nil {
		return nil, err
	}

	tmpl, err := render.Parse(rc.TemplatePath, rc.Template)
	if err != nil {
		return nil, err
	}

	summary := parser.RewriteLinks(rec.Summary, c.resolve)
	links := c.outbound(summary)
	tags := MergeTags(rc.DefaultTags, rec.Tags)
	created := c.now().UTC()
	book := c.bookLink(rc)

	body := tmpl.Render(render.Values{
		Title:     string(id),
		Summary:   strings.TrimSpace(summary),
		Examples:  strings.TrimSpace(rec.Examples),
		Links:     parser.FormatLinkList(links),
		Chapter:   quotedInner(rc.ChapterLabel),
		Tags:      FormatTags(tags),
		Created:   created.Format(TimestampLayout),
		BookTitle: book,
	})

	return &models.NoteArtifact{
		ID:        id,
		Title:     string(id),
		Body:      body,
		Chapter:   rc.ChapterLabel,
		Tags:      tags,
		CreatedAt: created,
		Links:     links,
	}, nil
}

// OutboundIDs recomputes the canonical link targets of a stored note.
// Links inside front-matter are ignored.
func (c *Compiler) OutboundIDs(note string) []models.CanonicalID {
	r, _ := parser.Parse([]byte(note))
	var out []models.CanonicalID
	for _, l := range c.outbound(r.Body) {
		out = append(out, models.CanonicalID(l))
	}
	return out
}

// bookLink returns the link target of the book's map of content.
func (c *Compiler) bookLink(rc models.RunContext) string {
	if rc.IndexName != "" {
		return rc.IndexName
	}
	id, err := c.normalizer.Normalize(rc.DocumentTitle)
	if err != nil {
		return ""
	}
	return string(id)
}

func (c *Compiler) resolve(target string) (string, bool) {
	id, err := c.normalizer.Normalize(target)
	if err != nil {
		return "", false
	}
	return string(id), true
}

// outbound returns the distinct canonical targets of body, first-seen order.
// Targets that cannot be normalized are dropped.
func (c *Compiler) outbound(body string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, raw := range parser.ExtractLinks(body) {
		id, ok := c.resolve(raw)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// MergeTags returns defaults followed by tags with "#" prefixes stripped,
// inner whitespace hyphenated and duplicates removed.
func MergeTags(defaults, tags []string) []string {
	out := make([]string, 0, len(defaults)+len(tags))
	seen := map[string]struct{}{}
	for _, list := range [][]string{defaults, tags} {
		for _, t := range list {
			// Tags cannot hold whitespace; "market theory" becomes "market-theory".
			t = strings.Join(strings.Fields(strings.TrimLeft(strings.TrimSpace(t), "#")), "-")
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// FormatTags renders tags as the inside of a YAML flow sequence, quoting any
// tag YAML would otherwise misread.
func FormatTags(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, yamlScalar(t))
	}
	return strings.Join(parts, ", ")
}

func yamlScalar(s string) string {
	if strings.ContainsAny(s, ",[]{}") {
		return quote(s)
	}
	out, err := yaml.Marshal(s)
	if err != nil {
		return quote(s)
	}
	return strings.TrimSpace(string(out))
}

func quote(s string) string {
	return `"` + quotedInner(s) + `"`
}

var quotedEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

// quotedInner escapes s for use between the quotes of a double-quoted YAML scalar.
func quotedInner(s string) string {
	return quotedEscaper.Replace(s)
}
