package notestore

import (
	"errors"
	"reflect"
	"testing"

	"github.com/starford/bookzettel/internal/apperr"
	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/storage"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir(), "md")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return New(fs, "md")
}

func note(id, body string) *models.NoteArtifact {
	return &models.NoteArtifact{ID: models.CanonicalID(id), Title: id, Body: body}
}

func TestWrite_CreateThenSkip(t *testing.T) {
	s := tempStore(t)

	out, err := s.Write(note("Beta", "first"), false)
	if err != nil || out != models.OutcomeCreated {
		t.Fatalf("first write = %v, %v", out, err)
	}
	out, err = s.Write(note("Beta", "second"), false)
	if err != nil || out != models.OutcomeSkippedDuplicate {
		t.Fatalf("second write = %v, %v", out, err)
	}
	data, _ := s.Read("Beta")
	if string(data) != "first" {
		t.Errorf("content = %q, duplicate must not clobber", data)
	}
}

func TestWrite_Overwrite(t *testing.T) {
	s := tempStore(t)

	out, err := s.Write(note("Beta", "v1"), true)
	if err != nil || out != models.OutcomeCreated {
		t.Fatalf("write to empty store = %v, %v", out, err)
	}
	out, err = s.Write(note("Beta", "v2"), true)
	if err != nil || out != models.OutcomeOverwritten {
		t.Fatalf("overwrite = %v, %v", out, err)
	}
	data, _ := s.Read("Beta")
	if string(data) != "v2" {
		t.Errorf("content = %q", data)
	}
}

func TestWrite_StoreError(t *testing.T) {
	s := tempStore(t)
	_, err := s.Write(note("../escape", "x"), false)
	var swe *apperr.StoreWriteError
	if !errors.As(err, &swe) {
		t.Fatalf("err = %v, want StoreWriteError", err)
	}
	if swe.Path != "../escape.md" {
		t.Errorf("path = %q", swe.Path)
	}
}

func TestExistsAndRead(t *testing.T) {
	s := tempStore(t)
	if ok, _ := s.Exists("Alpha"); ok {
		t.Fatal("Alpha should not exist yet")
	}
	_, _ = s.Write(note("Alpha", "a"), false)
	if ok, _ := s.Exists("Alpha"); !ok {
		t.Fatal("Alpha should exist")
	}
	if _, err := s.Read("Missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Read missing err = %v", err)
	}
}

func TestListIDs(t *testing.T) {
	s := tempStore(t)
	for _, id := range []string{"Gamma", "Alpha", "Beta"} {
		_, _ = s.Write(note(id, id), false)
	}
	if _, err := s.WriteIndex("Book", []byte("moc")); err != nil {
		t.Fatal(err)
	}

	ids, err := s.ListIDs()
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	want := []models.CanonicalID{"Alpha", "Beta", "Book", "Gamma"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestWriteIndex_AlwaysOverwrites(t *testing.T) {
	s := tempStore(t)
	path, err := s.WriteIndex("Book", []byte("v1"))
	if err != nil || path != "Book.md" {
		t.Fatalf("WriteIndex = %q, %v", path, err)
	}
	_, _ = s.WriteIndex("Book", []byte("v2"))
	data, _ := s.Read("Book")
	if string(data) != "v2" {
		t.Errorf("content = %q", data)
	}
}

func TestIDFromPath(t *testing.T) {
	s := tempStore(t)
	cases := map[string]bool{
		"Beta.md":     true,
		"sub/Beta.md": false,
		"Beta.txt":    false,
		".md":         false,
	}
	for path, want := range cases {
		if _, ok := s.IDFromPath(path); ok != want {
			t.Errorf("IDFromPath(%q) ok = %v, want %v", path, ok, want)
		}
	}
}
