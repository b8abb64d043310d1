// Package analysis turns extracted book text into concept records by asking a
// completion service. Responses are schema-checked before any record leaves
// the package, and the whole exchange is retried with exponential backoff.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/starford/bookzettel/internal/apperr"
	"github.com/starford/bookzettel/internal/models"
)

// Analyzer produces concept records from text. Failures are *apperr.AnalysisError.
type Analyzer interface {
	Analyze(ctx context.Context, text string) ([]models.ConceptRecord, error)
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// Service is the Analyzer backed by a completion Backend.
type Service struct {
	backend     Backend
	bookTitle   string
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBookTitle names the book in the prompt.
func WithBookTitle(title string) Option {
	return func(s *Service) { s.bookTitle = title }
}

// WithRetry sets the attempt budget and the first backoff delay. Each later
// delay doubles.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			s.baseDelay = baseDelay
		}
	}
}

// WithLogger sets the logger used for retry notices.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service over backend.
func NewService(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend:     backend,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze implements Analyzer. Transport errors, non-2xx replies and
// malformed or schema-violating responses are retried; auth failures and
// cancellation are not.
func (s *Service) Analyze(ctx context.Context, text string) ([]models.ConceptRecord, error) {
	prompt, err := renderPrompt(s.bookTitle, text)
	if err != nil {
		return nil, &apperr.AnalysisError{Provider: s.backend.Name(), Err: err}
	}

	attempts := 0
	op := func() ([]models.ConceptRecord, error) {
		attempts++
		raw, err := s.backend.Complete(ctx, prompt)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Retryable() {
				return nil, backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return DecodeRecords(raw)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = s.baseDelay << 5

	records, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("analysis: attempt failed",
				slog.String("provider", s.backend.Name()),
				slog.Int("attempt", attempts),
				slog.Duration("retry_in", next),
				slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		return nil, &apperr.AnalysisError{Provider: s.backend.Name(), Attempts: attempts, Err: err}
	}
	return records, nil
}
