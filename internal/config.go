package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bookzettel/internal/analysis"
	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/render"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Vault    VaultConfig       `yaml:"vault"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Book     BookConfig        `yaml:"book"`
	Notes    NotesConfig       `yaml:"notes"`
	Analysis AnalysisConfig    `yaml:"analysis"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Analysis.Validate()
}

// RunContext builds the per-run context for chapter from the book and notes
// sections. The template is loaded from disk when one is configured.
func (c *Config) RunContext(chapter string) (models.RunContext, error) {
	tmpl, err := render.LoadTemplate(c.Notes.Template)
	if err != nil {
		return models.RunContext{}, err
	}
	return models.RunContext{
		OutputDir:     c.Vault.Path,
		DocumentTitle: c.Book.Title,
		Author:        c.Book.Author,
		Overview:      c.Book.Overview,
		ChapterLabel:  strings.TrimSpace(chapter),
		Template:      tmpl.Source,
		TemplatePath:  tmpl.Path,
		DefaultTags:   append([]string(nil), c.Notes.DefaultTags...),
	}, nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig describes the output directory notes are written to.
type VaultConfig struct {
	Path string `yaml:"path"`
	// Extension is the note file extension, with or without the leading dot.
	Extension string `yaml:"extension"`
	// MOCName overrides the map of content name derived from the book title.
	MOCName  string   `yaml:"moc_name"`
	Acronyms []string `yaml:"acronyms"`
}

// Ext returns the extension with a leading dot.
func (c *VaultConfig) Ext() string {
	return "." + strings.TrimPrefix(c.Extension, ".")
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Extension, validation.Required),
		validation.Field(&c.MOCName, validation.Match(mocNameRe).Error("must be a plain file name")),
	)
}

// mocNameRe rejects names that cannot be a note file or a wiki link target.
var mocNameRe = regexp.MustCompile(`^[^./\\:*?"<>|\[\]#^][^/\\:*?"<>|\[\]#^]*$`)

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// BookConfig names the source document notes are taken from.
type BookConfig struct {
	Title    string `yaml:"title"`
	Author   string `yaml:"author"`
	Overview string `yaml:"overview"`
}

// NotesConfig controls how notes are rendered.
type NotesConfig struct {
	// Template is a path to a note template; empty uses the built-in one.
	Template    string   `yaml:"template"`
	DefaultTags []string `yaml:"default_tags"`
}

// AnalysisConfig selects the completion provider used by generate.
type AnalysisConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// Validate validates the analysis configuration. The API key is checked when
// the backend is built, since only generate needs one.
func (c *AnalysisConfig) Validate() error {
	providers := make([]any, len(analysis.Providers))
	for i, p := range analysis.Providers {
		providers[i] = p
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(providers...)),
		validation.Field(&c.MaxAttempts, validation.Min(1), validation.Max(10)),
		validation.Field(&c.BaseDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxTokens, validation.Min(0)),
	)
}

// BackendConfig converts the section into an analysis.BackendConfig.
func (c *AnalysisConfig) BackendConfig() analysis.BackendConfig {
	return analysis.BackendConfig{
		Provider:  c.Provider,
		Model:     c.Model,
		BaseURL:   c.BaseURL,
		APIKey:    c.APIKey,
		MaxTokens: c.MaxTokens,
		Timeout:   c.Timeout,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:      "./notes",
			Extension: "md",
		},
		SQLite: SQLiteConfig{
			Path: "./bookzettel.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Notes: NotesConfig{
			DefaultTags: []string{"finance", "investing"},
		},
		Analysis: AnalysisConfig{
			Provider:    analysis.ProviderAnthropic,
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Timeout:     120 * time.Second,
		},
	}
}
