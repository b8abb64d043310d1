package parser

import (
	"reflect"
	"testing"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ncreated: 2024-01-02 10:00:00\nchapter: \"Chapter 3\"\ntags: [finance, investing]\n---\n\n# Random Walk Theory\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Random Walk Theory" {
		t.Errorf("title = %q", r.Title)
	}
	if got := r.Field("chapter"); got != "Chapter 3" {
		t.Errorf("chapter = %q, want %q", got, "Chapter 3")
	}
	if !reflect.DeepEqual(r.Tags, []string{"finance", "investing"}) {
		t.Errorf("tags = %v", r.Tags)
	}
	if r.Body != "# Random Walk Theory\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_NumericChapter(t *testing.T) {
	r, _ := Parse([]byte("---\nchapter: 2\n---\nbody\n"))
	if got := r.Field("chapter"); got != "2" {
		t.Errorf("chapter = %q, want %q", got, "2")
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	r, err := Parse([]byte("# Just a heading\nSome text.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Field("chapter") != "" {
		t.Error("missing field should be empty")
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q", r.Title)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	r, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
}

func TestExtractLinks_FirstSeenOrder(t *testing.T) {
	body := "...the [[Efficient Market Hypothesis]] and [[Random Walk Theory]]... again [[Efficient Market Hypothesis]]"
	got := ExtractLinks(body)
	want := []string{"Efficient Market Hypothesis", "Random Walk Theory"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("links = %v, want %v", got, want)
	}
}

func TestExtractLinks_AdjacentMarkers(t *testing.T) {
	got := ExtractLinks("[[A]][[B]]")
	if !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("links = %v", got)
	}
}

func TestExtractLinks_Malformed(t *testing.T) {
	cases := []string{
		"[[Unclosed",
		"Not a [link]",
		"[[]]",
		"[[ ]]",
		"[[split\nacross]]",
		"]]backwards[[",
	}
	for _, body := range cases {
		if links := ExtractLinks(body); len(links) != 0 {
			t.Errorf("ExtractLinks(%q) = %v, want none", body, links)
		}
	}
}

func TestExtractLinks_NestedBracketsKeepInner(t *testing.T) {
	got := ExtractLinks("[[outer [[Inner]]")
	if !reflect.DeepEqual(got, []string{"Inner"}) {
		t.Errorf("links = %v", got)
	}
}

func TestExtractLinks_Alias(t *testing.T) {
	got := ExtractLinks("See [[Note A]] and [[Note B|alias]].")
	if !reflect.DeepEqual(got, []string{"Note A", "Note B"}) {
		t.Errorf("links = %v", got)
	}
}

func TestFormatLinkList(t *testing.T) {
	if got := FormatLinkList(nil); got != NoLinksMarker {
		t.Errorf("empty = %q", got)
	}
	got := FormatLinkList([]string{"A", "B"})
	if got != "- [[A]]\n- [[B]]" {
		t.Errorf("list = %q", got)
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := map[string]any{"tags": []any{"alpha", "#gamma"}}
	tags := extractTags("Some text #beta and #alpha again.", fm)
	if !reflect.DeepEqual(tags, []string{"alpha", "gamma", "beta"}) {
		t.Errorf("tags = %v", tags)
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	title := deriveTitle(map[string]any{"title": "FM Title"}, "# H1 Title\ntext")
	if title != "FM Title" {
		t.Errorf("title = %q", title)
	}
}

func TestRewriteLinks(t *testing.T) {
	canon := map[string]string{
		"efficient market hypothesis": "Efficient Market Hypothesis",
		"Random Walk Theory":          "Random Walk Theory",
		"beta":                        "Beta",
	}
	resolve := func(s string) (string, bool) {
		c, ok := canon[s]
		return c, ok
	}
	body := "the [[efficient market hypothesis]], [[Random Walk Theory]], [[beta|market beta]] and [[???]]"
	got := RewriteLinks(body, resolve)
	want := "the [[Efficient Market Hypothesis|efficient market hypothesis]], [[Random Walk Theory]], [[Beta|market beta]] and [[???]]"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
	if links := ExtractLinks(got); !reflect.DeepEqual(links, []string{"Efficient Market Hypothesis", "Random Walk Theory", "Beta", "???"}) {
		t.Errorf("links after rewrite = %v", links)
	}
}

func TestReplaceLinks(t *testing.T) {
	got := ReplaceLinks("[[A]], [[ B |bee]] and [[skip]]", func(target, alias string) (string, bool) {
		if target == "skip" {
			return "", false
		}
		return "<" + target + ":" + alias + ">", true
	})
	if want := "<A:>, <B:bee> and [[skip]]"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
