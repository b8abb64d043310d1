package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/normalize"
	"github.com/starford/bookzettel/internal/notestore"
	"github.com/starford/bookzettel/internal/parser"
	"github.com/starford/bookzettel/internal/storage"
)

// Catalog keeps a DB in step with the files of a note store.
type Catalog struct {
	db         *DB
	store      *notestore.Store
	normalizer *normalize.Normalizer
	logger     *slog.Logger
}

// NewCatalog creates a Catalog. Link targets are normalized with n so that
// [[capm]] and [[CAPM]] land on the same row.
func NewCatalog(db *DB, store *notestore.Store, n *normalize.Normalizer, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{db: db, store: store, normalizer: n, logger: logger}
}

// DB returns the underlying index.
func (c *Catalog) DB() *DB { return c.db }

// Reindex brings the catalog up to date with the store. It satisfies the
// engine's post-run hook.
func (c *Catalog) Reindex(ctx context.Context) error {
	return c.Sync(ctx)
}

// Sync walks the output directory and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func (c *Catalog) Sync(ctx context.Context) error {
	metas, err := c.store.List()
	if err != nil {
		return err
	}

	checksums, err := c.db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, ok := c.store.IDFromPath(m.Path)
		if !ok {
			continue
		}
		disk[string(id)] = struct{}{}

		if checksums[string(id)] == m.Checksum {
			continue
		}
		if err := c.indexID(id, m.UpdatedAt); err != nil {
			c.logger.Warn("sync: index failed", slog.String("id", string(id)), slog.String("error", err.Error()))
		} else {
			c.logger.Debug("sync: indexed", slog.String("id", string(id)))
		}
	}

	for id := range checksums {
		if _, ok := disk[id]; ok {
			continue
		}
		if err := c.db.DeleteNote(id); err != nil {
			c.logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
		} else {
			c.logger.Debug("sync: removed stale", slog.String("id", id))
		}
	}
	return nil
}

func (c *Catalog) indexID(id models.CanonicalID, modified time.Time) error {
	data, err := c.store.Read(id)
	if err != nil {
		return err
	}
	return c.IndexFile(c.store.Path(id), data, modified)
}

// IndexFile parses data stored at path and upserts it. Link targets are
// stored as canonical ids; targets that do not normalize are dropped.
func (c *Catalog) IndexFile(path string, data []byte, modified time.Time) error {
	id, ok := c.store.IDFromPath(path)
	if !ok {
		return fmt.Errorf("index: %s is not a note file", path)
	}
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}

	kind := res.Field("type")
	if kind == "" {
		kind = KindNote
	}
	title := res.Title
	if title == "" {
		title = string(id)
	}
	if modified.IsZero() {
		modified = time.Now()
	}

	row := NoteRow{
		ID:        string(id),
		Path:      path,
		Title:     title,
		Kind:      kind,
		Chapter:   res.Field("chapter"),
		Checksum:  storage.Checksum(data),
		Tags:      res.Tags,
		UpdatedAt: modified.UTC(),
	}
	return c.db.UpsertNote(row, res.Body, c.canonical(res.Links))
}

func (c *Catalog) canonical(links []string) []string {
	out := make([]string, 0, len(links))
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		id, err := c.normalizer.Normalize(l)
		if err != nil {
			continue
		}
		if _, dup := seen[string(id)]; dup {
			continue
		}
		seen[string(id)] = struct{}{}
		out = append(out, string(id))
	}
	return out
}

// Remove drops the note stored at path from the index.
func (c *Catalog) Remove(path string) error {
	id, ok := c.store.IDFromPath(path)
	if !ok {
		return nil
	}
	return c.db.DeleteNote(string(id))
}
