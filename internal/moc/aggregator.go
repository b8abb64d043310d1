// Package moc rebuilds the map of content and per-chapter index notes from
// the current contents of the note store.
package moc

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-slug"
	"gopkg.in/yaml.v3"

	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/normalize"
	"github.com/starford/bookzettel/internal/notestore"
	"github.com/starford/bookzettel/internal/parser"
)

// Front-matter type values of generated index artifacts. Notes carrying
// either are never listed as members.
const (
	TypeMapOfContent = "map-of-content"
	TypeChapterIndex = "chapter-index"
)

// Unassigned is the bucket for notes without a chapter.
const Unassigned = "Unassigned"

const chapterIndexPrefix = "index-"

// Aggregator builds index artifacts from a note store.
type Aggregator struct {
	store      *notestore.Store
	normalizer *normalize.Normalizer
	name       string
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithName fixes the map of content file name instead of deriving it from
// the document title.
func WithName(name string) Option {
	return func(a *Aggregator) {
		a.name = strings.TrimSpace(name)
	}
}

// New creates an Aggregator over store.
func New(store *notestore.Store, n *normalize.Normalizer, opts ...Option) *Aggregator {
	a := &Aggregator{store: store, normalizer: n}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the map of content file name (without extension) for rc.
func (a *Aggregator) Name(rc models.RunContext) (string, error) {
	if a.name != "" {
		return a.name, nil
	}
	if strings.TrimSpace(rc.DocumentTitle) == "" {
		return "", errors.New("moc: document title is required to name the map of content")
	}
	id, err := a.normalizer.Normalize(rc.DocumentTitle)
	if err != nil {
		return "", fmt.Errorf("moc: name: %w", err)
	}
	return string(id), nil
}

// ChapterIndexName returns the file name (without extension) of the index
// note for chapter.
func ChapterIndexName(chapter string) (string, error) {
	s, err := slug.Normalize(chapter)
	if err != nil {
		return "", fmt.Errorf("moc: slug %q: %w", chapter, err)
	}
	if s == "" {
		return "", fmt.Errorf("moc: chapter %q has no usable slug", chapter)
	}
	return chapterIndexPrefix + s, nil
}

type member struct {
	id      models.CanonicalID
	chapter string
}

// members reads the authoritative membership from the store, skipping index
// artifacts.
func (a *Aggregator) members(exclude string) ([]member, error) {
	ids, err := a.store.ListIDs()
	if err != nil {
		return nil, err
	}
	out := make([]member, 0, len(ids))
	for _, id := range ids {
		if string(id) == exclude {
			continue
		}
		data, err := a.store.Read(id)
		if err != nil {
			return nil, fmt.Errorf("moc: read %s: %w", id, err)
		}
		res, _ := parser.Parse(data)
		switch res.Field("type") {
		case TypeMapOfContent, TypeChapterIndex:
			continue
		}
		out = append(out, member{id: id, chapter: res.Field("chapter")})
	}
	return out, nil
}

// BuildOrUpdate regenerates the map of content from the store and writes it,
// replacing any previous version. newly is reported back as RecentlyAdded but
// does not influence membership.
func (a *Aggregator) BuildOrUpdate(rc models.RunContext, newly []models.NoteArtifact) (*models.IndexArtifact, error) {
	name, err := a.Name(rc)
	if err != nil {
		return nil, err
	}
	members, err := a.members(name)
	if err != nil {
		return nil, err
	}

	art := &models.IndexArtifact{
		Name:          name,
		DocumentTitle: rc.DocumentTitle,
		Author:        rc.Author,
		Overview:      overview(rc),
		Chapters:      bucket(members),
	}
	for _, m := range members {
		art.AllNotes = append(art.AllNotes, m.id)
	}
	for _, n := range newly {
		art.RecentlyAdded = append(art.RecentlyAdded, n.ID)
	}

	body, err := renderMOC(art)
	if err != nil {
		return nil, err
	}
	art.Body = body
	if _, err := a.store.WriteIndex(name, []byte(body)); err != nil {
		return nil, err
	}
	return art, nil
}

// BuildChapterIndex regenerates the index note of rc.ChapterLabel.
func (a *Aggregator) BuildChapterIndex(rc models.RunContext) (*models.IndexArtifact, error) {
	chapter := strings.TrimSpace(rc.ChapterLabel)
	if chapter == "" {
		return nil, errors.New("moc: chapter index needs a chapter label")
	}
	name, err := ChapterIndexName(chapter)
	if err != nil {
		return nil, err
	}
	members, err := a.members(name)
	if err != nil {
		return nil, err
	}

	art := &models.IndexArtifact{
		Name:          name,
		DocumentTitle: rc.DocumentTitle,
		Author:        rc.Author,
	}
	var ids []models.CanonicalID
	for _, m := range members {
		if m.chapter == chapter {
			ids = append(ids, m.id)
		}
	}
	art.Chapters = []models.ChapterBucket{{Chapter: chapter, Notes: ids}}
	art.AllNotes = ids

	parent, _ := a.Name(rc)
	body, err := renderChapterIndex(art, chapter, parent)
	if err != nil {
		return nil, err
	}
	art.Body = body
	if _, err := a.store.WriteIndex(name, []byte(body)); err != nil {
		return nil, err
	}
	return art, nil
}

func overview(rc models.RunContext) string {
	if o := strings.TrimSpace(rc.Overview); o != "" {
		return o
	}
	if rc.Author != "" {
		return fmt.Sprintf("Map of content for *%s* by %s.", rc.DocumentTitle, rc.Author)
	}
	return fmt.Sprintf("Map of content for *%s*.", rc.DocumentTitle)
}

// bucket groups members by chapter. Chapters are in natural order with
// Unassigned last; ids inside a chapter keep the store's sorted order.
func bucket(members []member) []models.ChapterBucket {
	byChapter := map[string][]models.CanonicalID{}
	for _, m := range members {
		ch := m.chapter
		if ch == "" {
			ch = Unassigned
		}
		byChapter[ch] = append(byChapter[ch], m.id)
	}
	chapters := make([]string, 0, len(byChapter))
	for ch := range byChapter {
		chapters = append(chapters, ch)
	}
	sort.Slice(chapters, func(i, j int) bool {
		if chapters[i] == Unassigned || chapters[j] == Unassigned {
			return chapters[j] == Unassigned && chapters[i] != Unassigned
		}
		return naturalLess(chapters[i], chapters[j])
	})
	out := make([]models.ChapterBucket, 0, len(chapters))
	for _, ch := range chapters {
		out = append(out, models.ChapterBucket{Chapter: ch, Notes: byChapter[ch]})
	}
	return out
}

type mocFrontmatter struct {
	Type    string   `yaml:"type"`
	Book    string   `yaml:"book,omitempty"`
	Author  string   `yaml:"author,omitempty"`
	Chapter string   `yaml:"chapter,omitempty"`
	Tags    []string `yaml:"tags,flow"`
}

func writeFrontmatter(b *strings.Builder, fm mocFrontmatter) error {
	out, err := yaml.Marshal(fm)
	if err != nil {
		return fmt.Errorf("moc: encode front-matter: %w", err)
	}
	b.WriteString("---\n")
	b.Write(out)
	b.WriteString("---\n\n")
	return nil
}

func writeLinks(b *strings.Builder, ids []models.CanonicalID) {
	if len(ids) == 0 {
		b.WriteString("*No notes yet.*\n")
		return
	}
	for _, id := range ids {
		b.WriteString("- [[")
		b.WriteString(string(id))
		b.WriteString("]]\n")
	}
}

// renderMOC has no timestamp so the same store state yields identical bytes.
func renderMOC(art *models.IndexArtifact) (string, error) {
	var b strings.Builder
	err := writeFrontmatter(&b, mocFrontmatter{
		Type:   TypeMapOfContent,
		Book:   art.DocumentTitle,
		Author: art.Author,
		Tags:   []string{"moc", "book"},
	})
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "# %s\n\n", art.DocumentTitle)
	if art.Author != "" {
		fmt.Fprintf(&b, "**Author:** %s\n\n", art.Author)
	}
	fmt.Fprintf(&b, "## Overview\n%s\n\n", art.Overview)
	for _, ch := range art.Chapters {
		fmt.Fprintf(&b, "## %s\n", ch.Chapter)
		writeLinks(&b, ch.Notes)
		b.WriteString("\n")
	}
	b.WriteString("## All Notes\n")
	writeLinks(&b, art.AllNotes)
	return b.String(), nil
}

func renderChapterIndex(art *models.IndexArtifact, chapter, parent string) (string, error) {
	var b strings.Builder
	err := writeFrontmatter(&b, mocFrontmatter{
		Type:    TypeChapterIndex,
		Book:    art.DocumentTitle,
		Chapter: chapter,
		Tags:    []string{"index"},
	})
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "# %s\n\n", chapter)
	if parent != "" {
		fmt.Fprintf(&b, "Part of [[%s]].\n\n", parent)
	}
	b.WriteString("## Notes\n")
	writeLinks(&b, art.AllNotes)
	return b.String(), nil
}
