package internal

import (
	"log/slog"

	"github.com/starford/bookzettel/internal/analysis"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	logger   *slog.Logger
	analyzer analysis.Analyzer
	version  string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the JSON stdout logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithAnalyzer replaces the analyzer built from the analysis section.
func WithAnalyzer(an analysis.Analyzer) Option {
	return func(a *application) {
		a.analyzer = an
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
