package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func tempVault(t *testing.T) *FS {
	t.Helper()
	s, err := NewFS(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func TestWriteAndRead(t *testing.T) {
	s := tempVault(t)
	content := []byte("# Beta\nRisk measure.\n")
	if err := s.Write("Beta.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("Beta.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestExists(t *testing.T) {
	s := tempVault(t)
	ok, err := s.Exists("Alpha.md")
	if err != nil || ok {
		t.Fatalf("Exists before write = %v, %v", ok, err)
	}
	_ = s.Write("Alpha.md", []byte("a"))
	ok, err = s.Exists("Alpha.md")
	if err != nil || !ok {
		t.Fatalf("Exists after write = %v, %v", ok, err)
	}
	_ = os.Mkdir(filepath.Join(s.Root(), "dir.md"), 0o755)
	if ok, _ := s.Exists("dir.md"); ok {
		t.Error("directory reported as a note")
	}
}

func TestCreateRefusesExisting(t *testing.T) {
	s := tempVault(t)
	if err := s.Create("Alpha.md", []byte("first")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Create("Alpha.md", []byte("second"))
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("second Create err = %v, want fs.ErrExist", err)
	}
	got, _ := s.Read("Alpha.md")
	if string(got) != "first" {
		t.Errorf("content = %q, want first", got)
	}
	assertNoTempFiles(t, s)
}

func TestCreateConcurrentSingleWinner(t *testing.T) {
	s := tempVault(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Create("Race.md", []byte("x")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}

func TestDelete(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("del.md", []byte("bye"))
	if err := s.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestListRootOnly(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("b.md", []byte("b"))
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/c.md", []byte("c"))
	_ = s.Write("readme.txt", []byte("not md"))
	_ = s.Write(".hidden.md", []byte("h"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 || items[0].Path != "a.md" || items[1].Path != "b.md" {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Checksum != Checksum([]byte("a")) {
		t.Errorf("checksum = %s", items[0].Checksum)
	}
}

func TestListCustomExtension(t *testing.T) {
	s, err := NewFS(t.TempDir(), "markdown")
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Write("a.markdown", []byte("a"))
	_ = s.Write("b.md", []byte("b"))
	items, _ := s.List("")
	if len(items) != 1 || items[0].Path != "a.markdown" {
		t.Errorf("items = %+v", items)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if err := s.Create(p, []byte("x")); err == nil {
			t.Errorf("expected error for create at %q", p)
		}
	}
}

func TestAtomicOverwrite(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("atomic.md", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}
	assertNoTempFiles(t, s)
}

func TestNewFS_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vault", "notes")
	s, err := NewFS(dir, ".md")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if info, err := os.Stat(s.Root()); err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFS(path, ""); err == nil {
		t.Error("expected error when root is a file")
	}
}

func assertNoTempFiles(t *testing.T, s *FS) {
	t.Helper()
	matches, _ := filepath.Glob(filepath.Join(s.root, tmpPattern))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}
