package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/bookzettel/internal/index"
	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/testutil"
)

// testEnv wires a temp output directory, catalog, service and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*testutil.Env, http.Handler) {
	t.Helper()
	env := testutil.NewEnv(t)
	return env, NewRouter(env.Service, authToken != "", authToken, nil)
}

func seeded(t *testing.T) (*testutil.Env, http.Handler) {
	t.Helper()
	env, router := testEnv(t, "")
	env.Seed(t)
	return env, router
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func notePath(id string) string {
	return "/notes/" + url.PathEscape(id)
}

func TestCompileEndpoint(t *testing.T) {
	env, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/compile", map[string]any{
		"records":   testutil.SampleRecords(),
		"chapter":   "Chapter 1",
		"build_moc": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("compile = %d, body = %s", w.Code, w.Body.String())
	}
	var sum models.RunSummary
	_ = json.Unmarshal(w.Body.Bytes(), &sum)
	if sum.Written != 3 || sum.Skipped != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.IndexPath != "A Random Walk Down Wall Street.md" {
		t.Errorf("index path = %q", sum.IndexPath)
	}
	if !reflectEqual(sum.Unresolved["Beta"], []string{"CAPM"}) {
		t.Errorf("unresolved = %v", sum.Unresolved)
	}
	if _, err := os.Stat(filepath.Join(env.Dir, "Random Walk Theory.md")); err != nil {
		t.Errorf("note not written: %v", err)
	}

	// Same batch again: everything is a duplicate.
	w = do(t, router, http.MethodPost, "/compile", map[string]any{"records": testutil.SampleRecords()})
	_ = json.Unmarshal(w.Body.Bytes(), &sum)
	if sum.Written != 0 || sum.Skipped != 3 {
		t.Errorf("second run summary = %+v", sum)
	}
}

func TestCompileEndpoint_RejectsInvalidRecords(t *testing.T) {
	env, router := testEnv(t, "")

	cases := map[string]any{
		"missing records": map[string]any{"chapter": "1"},
		"empty array":     map[string]any{"records": []any{}},
		"no summary":      map[string]any{"records": []any{map[string]any{"title": "Alpha", "tags": []string{}}}},
		"not an array":    map[string]any{"records": map[string]any{"title": "Alpha"}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/compile", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
			}
		})
	}
	if ids, _ := env.Store.ListIDs(); len(ids) != 0 {
		t.Errorf("invalid batches wrote %v", ids)
	}
}

func TestCompileEndpoint_InvalidJSON(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestGetNote(t *testing.T) {
	_, router := seeded(t)

	w := do(t, router, http.MethodGet, notePath("Random Walk Theory"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.ID != "Random Walk Theory" || note.Title != "Random Walk Theory" {
		t.Errorf("note = %+v", note)
	}
	if note.Chapter != "Chapter 1" || note.Kind != index.KindNote {
		t.Errorf("chapter = %q kind = %q", note.Chapter, note.Kind)
	}
	if !contains(note.Links, "Efficient Market Hypothesis") {
		t.Errorf("links = %v", note.Links)
	}
	if !contains(note.Backlinks, "Efficient Market Hypothesis") {
		t.Errorf("backlinks = %v", note.Backlinks)
	}
	if note.HTML != "" {
		t.Error("html rendered without format=html")
	}
}

func TestGetNote_HTML(t *testing.T) {
	_, router := seeded(t)

	w := do(t, router, http.MethodGet, notePath("Efficient Market Hypothesis")+"?format=html", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if !strings.Contains(note.HTML, "<h1") {
		t.Errorf("html missing heading:\n%s", note.HTML)
	}
	if !strings.Contains(note.HTML, `href="/api/notes/Random%20Walk%20Theory"`) {
		t.Errorf("wikilink not rendered as link:\n%s", note.HTML)
	}
	if strings.Contains(note.HTML, "[[") {
		t.Errorf("raw wikilink left in html:\n%s", note.HTML)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, notePath("Nope"), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestBacklinksEndpoint(t *testing.T) {
	_, router := seeded(t)

	w := do(t, router, http.MethodGet, notePath("Beta")+"/backlinks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp BacklinksResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ID != "Beta" || !reflectEqual(resp.Backlinks, []string{"A Random Walk Down Wall Street"}) {
		t.Errorf("backlinks = %+v", resp)
	}
}

func TestMOCEndpoint(t *testing.T) {
	_, router := seeded(t)

	w := do(t, router, http.MethodGet, "/moc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Kind != "map-of-content" {
		t.Errorf("kind = %q", note.Kind)
	}
	for _, id := range []string{"Beta", "Efficient Market Hypothesis", "Random Walk Theory"} {
		if !strings.Contains(note.Content, "- [["+id+"]]") {
			t.Errorf("moc missing %s:\n%s", id, note.Content)
		}
	}
}

func TestMOCEndpoint_NotBuilt(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/moc", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRebuildEndpoint(t *testing.T) {
	env, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/compile", map[string]any{"records": testutil.SampleRecords(), "chapter": "Chapter 1"})
	if w.Code != http.StatusOK {
		t.Fatalf("compile = %d", w.Code)
	}

	w = do(t, router, http.MethodPost, "/rebuild", RebuildRequest{Chapter: "Chapter 1"})
	if w.Code != http.StatusOK {
		t.Fatalf("rebuild = %d, body = %s", w.Code, w.Body.String())
	}
	var sum models.RunSummary
	_ = json.Unmarshal(w.Body.Bytes(), &sum)
	if sum.IndexPath == "" || !strings.HasPrefix(sum.ChapterPath, "index-") {
		t.Errorf("summary = %+v", sum)
	}
	for _, p := range []string{sum.IndexPath, sum.ChapterPath} {
		if _, err := os.Stat(filepath.Join(env.Dir, p)); err != nil {
			t.Errorf("%s missing: %v", p, err)
		}
	}
}

func TestListNotes(t *testing.T) {
	_, router := seeded(t)

	w := do(t, router, http.MethodGet, "/notes?limit=10&kind=note", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 3 || len(resp.Notes) != 3 {
		t.Errorf("notes = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/notes?tag=risk", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Notes[0].ID != "Beta" {
		t.Errorf("tag filter = %+v", resp)
	}
}

func TestDanglingEndpoint(t *testing.T) {
	_, router := seeded(t)

	w := do(t, router, http.MethodGet, "/links/dangling", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp DanglingResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	want := []index.DanglingLink{{Source: "Beta", Target: "CAPM"}}
	if len(resp.Links) != 1 || resp.Links[0] != want[0] {
		t.Errorf("dangling = %+v", resp.Links)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := seeded(t)

	w := do(t, router, http.MethodGet, "/search?q=unpredictably", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].ID != "Random Walk Theory" {
		t.Errorf("search results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestGraphEndpoint(t *testing.T) {
	_, router := seeded(t)

	w := do(t, router, http.MethodGet, "/graph", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graph = %d", w.Code)
	}
	var resp GraphResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Nodes) != 4 {
		t.Errorf("nodes = %+v", resp.Nodes)
	}
	for _, l := range resp.Links {
		if l.Target == "CAPM" {
			t.Errorf("graph contains dangling edge %+v", l)
		}
	}
	if len(resp.Links) < 3 {
		t.Errorf("links = %+v", resp.Links)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodPost, "/compile", map[string]any{"records": testutil.SampleRecords()}); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	router := testEnvWithSSE(t, false, "")

	// The handler blocks until the request context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// testEnvWithSSE creates a router with a stub SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	env := testutil.NewEnv(t)

	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(env.Service, authEnabled, token, sseHandler)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func reflectEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRebuildEndpoint_EmptyBody(t *testing.T) {
	env, router := testEnv(t, "")
	env.Seed(t)

	w := do(t, router, http.MethodPost, "/rebuild", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rebuild = %d, body = %s", w.Code, w.Body.String())
	}
	var sum models.RunSummary
	_ = json.Unmarshal(w.Body.Bytes(), &sum)
	if sum.ChapterPath != "" {
		t.Errorf("chapter index built without a chapter: %+v", sum)
	}
}

func TestAuthWrongToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secre")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
