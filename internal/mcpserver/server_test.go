package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/bookzettel/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t)
	return New(env.Service, "test"), env
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process "call tool" helper, so handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "compile_concepts":
		result, err = srv.compileConcepts(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "list_dangling_links":
		result, err = srv.listDangling(ctx, req)
	case "rebuild_moc":
		result, err = srv.rebuildMOC(ctx, req)
	case "get_concept_contract":
		result, err = srv.getConceptContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

const sampleRecords = `[
  {"title": "Random Walk Theory", "summary": "Prices follow the [[efficient market hypothesis]].", "tags": ["market-theory"]},
  {"title": "Efficient Market Hypothesis", "summary": "Prices reflect information.", "tags": []}
]`

func TestCompileAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "compile_concepts", map[string]interface{}{
		"records": sampleRecords,
		"chapter": "Chapter 3",
	})
	if r.IsError {
		t.Fatalf("compile failed: %s", resultText(r))
	}
	var summary struct {
		Written int      `json:"written"`
		IDs     []string `json:"ids"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &summary); err != nil {
		t.Fatalf("summary is not JSON: %v", err)
	}
	if summary.Written != 2 {
		t.Errorf("written = %d, want 2", summary.Written)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"id": "Random Walk Theory"})
	text := resultText(r)
	if r.IsError {
		t.Fatalf("read failed: %s", text)
	}
	for _, want := range []string{"# Random Walk Theory", `chapter: "Chapter 3"`, "[[Efficient Market Hypothesis|efficient market hypothesis]]"} {
		if !strings.Contains(text, want) {
			t.Errorf("note missing %q:\n%s", want, text)
		}
	}
}

func TestCompileRejectsBadRecords(t *testing.T) {
	srv, env := testServer(t)
	r := callTool(t, srv, "compile_concepts", map[string]interface{}{
		"records": `[{"title": "Alpha"}]`,
	})
	if !r.IsError {
		t.Fatal("expected error for record without summary")
	}
	ids, err := env.Store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("rejected batch wrote %v", ids)
	}
}

func TestReadNoteHTML(t *testing.T) {
	srv, env := testServer(t)
	env.Seed(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"id": "Beta", "format": "html"})
	text := resultText(r)
	if !strings.Contains(text, "<h1>Beta</h1>") {
		t.Errorf("html = %s", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"id": "Nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
	if !strings.Contains(resultText(r), "not found") {
		t.Errorf("text = %q", resultText(r))
	}
}

func TestListNotes(t *testing.T) {
	srv, env := testServer(t)
	env.Seed(t)

	r := callTool(t, srv, "list_notes", map[string]interface{}{"tag": "risk"})
	if got := resultText(r); got != "Beta" {
		t.Errorf("list by tag = %q, want Beta", got)
	}

	r = callTool(t, srv, "list_notes", map[string]interface{}{"tag": "nothing"})
	if got := resultText(r); got != "no notes found" {
		t.Errorf("empty list = %q", got)
	}
}

func TestSearchNotes(t *testing.T) {
	srv, env := testServer(t)
	env.Seed(t)
	r := callTool(t, srv, "search_notes", map[string]interface{}{"query": "unpredictably"})
	if !strings.Contains(resultText(r), "Random Walk Theory") {
		t.Errorf("search = %s", resultText(r))
	}
}

func TestGetBacklinks(t *testing.T) {
	srv, env := testServer(t)
	env.Seed(t)

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"id": "Efficient Market Hypothesis"})
	if got := resultText(r); !strings.Contains(got, "Random Walk Theory") {
		t.Errorf("backlinks = %q", got)
	}

	r = callTool(t, srv, "get_backlinks", map[string]interface{}{"id": "Nobody Links Here"})
	if got := resultText(r); got != "no backlinks found" {
		t.Errorf("backlinks = %q", got)
	}
}

func TestListDanglingLinks(t *testing.T) {
	srv, env := testServer(t)
	r := callTool(t, srv, "list_dangling_links", nil)
	if got := resultText(r); got != "no dangling links" {
		t.Errorf("empty vault = %q", got)
	}

	env.Seed(t)
	r = callTool(t, srv, "list_dangling_links", nil)
	if got := resultText(r); got != "Beta -> CAPM" {
		t.Errorf("dangling = %q", got)
	}
}

func TestRebuildMOC(t *testing.T) {
	srv, env := testServer(t)
	env.Seed(t)
	r := callTool(t, srv, "rebuild_moc", map[string]interface{}{"chapter": "Chapter 1"})
	if r.IsError {
		t.Fatalf("rebuild failed: %s", resultText(r))
	}
	var summary struct {
		IndexPath   string `json:"index_path"`
		ChapterPath string `json:"chapter_index_path"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.IndexPath == "" || summary.ChapterPath == "" {
		t.Errorf("summary = %+v", summary)
	}
}

func TestGetConceptContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_concept_contract", nil)
	if resultText(r) != ConceptContract {
		t.Error("contract text mismatch")
	}
}
