// Package engine runs a batch of concept records through compilation, the
// note store and the map of content, and reports what happened.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/bookzettel/internal/analysis"
	"github.com/starford/bookzettel/internal/apperr"
	"github.com/starford/bookzettel/internal/compiler"
	"github.com/starford/bookzettel/internal/moc"
	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/normalize"
	"github.com/starford/bookzettel/internal/notestore"
	"github.com/starford/bookzettel/internal/render"
	"github.com/starford/bookzettel/internal/source"
)

// Indexer is told to catch up after a run wrote files.
type Indexer interface {
	Reindex(ctx context.Context) error
}

// Options controls one run.
type Options struct {
	// Overwrite replaces existing notes instead of skipping them.
	Overwrite bool
	// BuildMOC regenerates the map of content after the batch.
	BuildMOC bool
	// BuildChapterIndex regenerates the index note of the run's chapter.
	BuildChapterIndex bool
}

// Engine wires the compiler, store and aggregator together.
type Engine struct {
	compiler  *compiler.Compiler
	store     *notestore.Store
	agg       *moc.Aggregator
	extractor source.Extractor
	analyzer  analysis.Analyzer
	indexer   Indexer
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCompiler replaces the default compiler.
func WithCompiler(c *compiler.Compiler) Option {
	return func(e *Engine) { e.compiler = c }
}

// WithAggregator replaces the default map of content aggregator.
func WithAggregator(a *moc.Aggregator) Option {
	return func(e *Engine) { e.agg = a }
}

// WithExtractor sets the text source used by Generate.
func WithExtractor(x source.Extractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithAnalyzer sets the analysis collaborator used by Generate.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

// WithIndexer registers a catalog to refresh after each run.
func WithIndexer(i Indexer) Option {
	return func(e *Engine) { e.indexer = i }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over store. n is shared by the default compiler and
// aggregator so ids and link targets agree.
func New(store *notestore.Store, n *normalize.Normalizer, opts ...Option) *Engine {
	e := &Engine{
		compiler:  compiler.New(n),
		store:     store,
		agg:       moc.New(store, n),
		extractor: source.NewAuto(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's note store.
func (e *Engine) Store() *notestore.Store { return e.store }

// MOCName returns the file name (without extension) of the map of content for rc.
func (e *Engine) MOCName(rc models.RunContext) (string, error) { return e.agg.Name(rc) }

// Compile processes records in order. Records with unusable titles are
// skipped and reported; template and store errors abort the run. On a store
// error the returned summary still describes the notes written before it.
func (e *Engine) Compile(ctx context.Context, rc models.RunContext, records []models.ConceptRecord, opts Options) (*models.RunSummary, error) {
	if _, err := render.Parse(rc.TemplatePath, rc.Template); err != nil {
		return nil, err
	}
	if rc.IndexName == "" {
		if name, err := e.agg.Name(rc); err == nil {
			rc.IndexName = name
		}
	}

	summary := &models.RunSummary{
		RunID:    uuid.NewString(),
		IDs:      []models.CanonicalID{},
		Outcomes: map[models.CanonicalID]models.WriteOutcome{},
	}
	log := e.logger.With(slog.String("run_id", summary.RunID))
	log.Info("run started", slog.Int("records", len(records)), slog.String("chapter", rc.ChapterLabel))

	var written []models.NoteArtifact
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		art, err := e.compiler.Compile(rec, rc)
		if err != nil {
			var ite *apperr.InvalidTitleError
			if errors.As(err, &ite) {
				summary.Invalid = append(summary.Invalid, models.RecordFailure{Index: i, Title: rec.Title, Error: err.Error()})
				log.Warn("record skipped", slog.Int("index", i), slog.String("error", err.Error()))
				continue
			}
			return summary, err
		}

		if _, seen := summary.Outcomes[art.ID]; seen {
			// Same concept twice in one batch: the first one wins.
			summary.Skipped++
			log.Info("duplicate in batch", slog.String("id", string(art.ID)), slog.Int("index", i))
			continue
		}

		outcome, err := e.store.Write(art, opts.Overwrite)
		if err != nil {
			log.Error("write failed", slog.String("id", string(art.ID)), slog.String("error", err.Error()))
			return summary, err
		}
		summary.IDs = append(summary.IDs, art.ID)
		summary.Outcomes[art.ID] = outcome
		switch outcome {
		case models.OutcomeCreated:
			summary.Written++
			written = append(written, *art)
		case models.OutcomeOverwritten:
			summary.Overwritten++
			written = append(written, *art)
		case models.OutcomeSkippedDuplicate:
			summary.Skipped++
		}
		log.Debug("note", slog.String("id", string(art.ID)), slog.String("outcome", string(outcome)))
	}

	unresolved, err := e.unresolved(written)
	if err != nil {
		return summary, err
	}
	if len(unresolved) > 0 {
		summary.Unresolved = unresolved
	}

	if err := e.buildIndexes(rc, written, opts, summary, log); err != nil {
		return summary, err
	}
	e.reindex(ctx, log)

	log.Info("run finished",
		slog.Int("written", summary.Written),
		slog.Int("overwritten", summary.Overwritten),
		slog.Int("skipped", summary.Skipped),
		slog.Int("invalid", len(summary.Invalid)),
		slog.Int("unresolved", len(summary.Unresolved)))
	return summary, nil
}

// Rebuild regenerates the requested index artifacts from the current store
// without compiling any records.
func (e *Engine) Rebuild(ctx context.Context, rc models.RunContext, opts Options) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		RunID:    uuid.NewString(),
		IDs:      []models.CanonicalID{},
		Outcomes: map[models.CanonicalID]models.WriteOutcome{},
	}
	log := e.logger.With(slog.String("run_id", summary.RunID))
	if err := e.buildIndexes(rc, nil, opts, summary, log); err != nil {
		return summary, err
	}
	e.reindex(ctx, log)
	log.Info("indexes rebuilt", slog.String("moc", summary.IndexPath), slog.String("chapter_index", summary.ChapterPath))
	return summary, nil
}

func (e *Engine) buildIndexes(rc models.RunContext, written []models.NoteArtifact, opts Options, summary *models.RunSummary, log *slog.Logger) error {
	if opts.BuildChapterIndex {
		if rc.ChapterLabel == "" {
			log.Warn("chapter index skipped: no chapter label")
		} else {
			art, err := e.agg.BuildChapterIndex(rc)
			if err != nil {
				return fmt.Errorf("engine: chapter index: %w", err)
			}
			summary.ChapterPath = art.Name + e.store.Ext()
		}
	}
	if opts.BuildMOC {
		art, err := e.agg.BuildOrUpdate(rc, written)
		if err != nil {
			return fmt.Errorf("engine: map of content: %w", err)
		}
		summary.IndexPath = art.Name + e.store.Ext()
	}
	return nil
}

func (e *Engine) reindex(ctx context.Context, log *slog.Logger) {
	if e.indexer == nil {
		return
	}
	if err := e.indexer.Reindex(ctx); err != nil {
		log.Warn("catalog refresh failed", slog.String("error", err.Error()))
	}
}

// unresolved maps each written note to the link targets missing from the store.
func (e *Engine) unresolved(written []models.NoteArtifact) (map[models.CanonicalID][]string, error) {
	out := map[models.CanonicalID][]string{}
	for _, a := range written {
		for _, target := range a.Links {
			ok, err := e.store.Exists(models.CanonicalID(target))
			if err != nil {
				return nil, err
			}
			if !ok {
				out[a.ID] = append(out[a.ID], target)
			}
		}
	}
	return out, nil
}

// GenerateRequest describes a full extract, analyze and compile run.
type GenerateRequest struct {
	Source  string
	Start   int
	End     int
	Context models.RunContext
	Options Options
}

// Validate implements validation.Validatable.
func (r GenerateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Start, validation.Min(0)),
		validation.Field(&r.End, validation.Min(r.Start)),
	)
}

// Generate extracts text, asks the analyzer for concept records and compiles
// them. Extraction and analysis failures happen before any note is written.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) (*models.RunSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid request: %w", err)
	}
	if e.analyzer == nil {
		return nil, errors.New("engine: no analyzer configured")
	}
	if _, err := render.Parse(req.Context.TemplatePath, req.Context.Template); err != nil {
		return nil, err
	}

	text, err := e.extractor.Extract(ctx, req.Source, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	e.logger.Info("text extracted", slog.String("source", req.Source), slog.Int("chars", len(text)))

	records, err := e.analyzer.Analyze(ctx, text)
	if err != nil {
		return nil, err
	}
	e.logger.Info("concepts received", slog.Int("records", len(records)))

	return e.Compile(ctx, req.Context, records, req.Options)
}
