// Package testutil provides shared test helpers for setting up a note
// directory, catalog and service.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/bookzettel/internal/engine"
	"github.com/starford/bookzettel/internal/index"
	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/normalize"
	"github.com/starford/bookzettel/internal/noteservice"
	"github.com/starford/bookzettel/internal/notestore"
	"github.com/starford/bookzettel/internal/storage"
)

// Env is a fully wired note directory for surface tests.
type Env struct {
	Dir     string
	Store   *notestore.Store
	Catalog *index.Catalog
	Engine  *engine.Engine
	Service *noteservice.Service
}

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary output directory with a note store.
func TestStore(t *testing.T) (string, *notestore.Store) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir, ".md")
	if err != nil {
		t.Fatal(err)
	}
	return dir, notestore.New(fs, ".md")
}

// BookContext is the run context used across surface tests.
func BookContext() models.RunContext {
	return models.RunContext{
		DocumentTitle: "A Random Walk Down Wall Street",
		Author:        "Burton G. Malkiel",
		DefaultTags:   []string{"finance", "investing"},
	}
}

// SampleRecords returns three linked concepts; Beta links to a concept that
// has no note.
func SampleRecords() []models.ConceptRecord {
	return []models.ConceptRecord{
		{
			Title:   "Random Walk Theory",
			Summary: "Prices move unpredictably, a consequence of the [[Efficient Market Hypothesis]].",
			Tags:    []string{"market-theory"},
		},
		{
			Title:   "Efficient Market Hypothesis",
			Summary: "Prices reflect available information, see [[random walk theory]].",
			Tags:    []string{"market-theory"},
		},
		{
			Title:    "Beta",
			Summary:  "Sensitivity to market moves, central to the [[CAPM]].",
			Examples: "A beta of 1.5 swings 50% more than the index.",
			Tags:     []string{"risk"},
		},
	}
}

// NewEnv wires store, catalog, engine and service over temporary storage.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	dir, store := TestStore(t)
	n := normalize.New()
	logger := Logger()
	cat := index.NewCatalog(TestDB(t), store, n, logger)
	eng := engine.New(store, n, engine.WithIndexer(cat), engine.WithLogger(logger))
	return &Env{
		Dir:     dir,
		Store:   store,
		Catalog: cat,
		Engine:  eng,
		Service: noteservice.NewService(eng, cat, BookContext()),
	}
}

// Seed compiles SampleRecords into chapter "Chapter 1" with a map of content.
func (e *Env) Seed(t *testing.T) *models.RunSummary {
	t.Helper()
	sum, err := e.Service.Compile(context.Background(), noteservice.CompileRequest{
		Records:  SampleRecords(),
		Chapter:  "Chapter 1",
		BuildMOC: true,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return sum
}
