package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/bookzettel/internal"
	"github.com/starford/bookzettel/internal/analysis"
	"github.com/starford/bookzettel/internal/engine"
	"github.com/starford/bookzettel/internal/models"
	pkgconfig "github.com/starford/bookzettel/pkg/config"
)

var version = "dev"

// apiKeyEnv maps providers to the environment variable holding their key.
var apiKeyEnv = map[string]string{
	analysis.ProviderAnthropic: "ANTHROPIC_API_KEY",
	analysis.ProviderOpenAI:    "OPENAI_API_KEY",
	analysis.ProviderGoogle:    "GOOGLE_API_KEY",
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if v := cmd.String("output"); v != "" {
		cfg.Vault.Path = v
	}
	if v := cmd.String("book-title"); v != "" {
		cfg.Book.Title = v
	}
	if v := cmd.String("author"); v != "" {
		cfg.Book.Author = v
	}
	if v := cmd.String("template"); v != "" {
		cfg.Notes.Template = v
	}
	if v := cmd.String("provider"); v != "" {
		cfg.Analysis.Provider = v
	}
	if v := cmd.String("model"); v != "" {
		cfg.Analysis.Model = v
	}
	if cfg.Analysis.APIKey == "" {
		if env, ok := apiKeyEnv[cfg.Analysis.Provider]; ok {
			cfg.Analysis.APIKey = os.Getenv(env)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openApp loads the config and wires the application. One-shot commands log
// to stderr so stdout carries only their result.
func openApp(cmd *cli.Command, logTo io.Writer) (*internal.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.New(
		internal.WithConfig(cfg),
		internal.WithLogger(internal.NewLogger(logTo, cfg.App.LogLevel)),
		internal.WithVersion(version),
	)
}

func runOptions(cmd *cli.Command) engine.Options {
	return engine.Options{
		Overwrite:         cmd.Bool("overwrite"),
		BuildMOC:          cmd.Bool("create-moc"),
		BuildChapterIndex: cmd.Bool("create-index"),
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// finish prints the summary, which may describe a partial run, and returns err.
func finish(summary *models.RunSummary, err error) error {
	if summary != nil {
		if perr := printJSON(os.Stdout, summary); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func generate(ctx context.Context, cmd *cli.Command) error {
	src := cmd.Args().First()
	if src == "" {
		return fmt.Errorf("generate: source file is required")
	}
	app, err := openApp(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := app.Generate(ctx, src, int(cmd.Int("start")), int(cmd.Int("end")), cmd.String("chapter"), runOptions(cmd))
	return finish(summary, err)
}

func compile(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("compile: records file is required (use - for stdin)")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("compile: read records: %w", err)
	}
	records, err := analysis.DecodeRecords(string(data))
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	app, err := openApp(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := app.Compile(ctx, records, cmd.String("chapter"), runOptions(cmd))
	return finish(summary, err)
}

func rebuildMOC(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := app.Rebuild(ctx, cmd.String("chapter"))
	return finish(summary, err)
}

func links(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	dangling, err := app.Dangling(ctx)
	if err != nil {
		return err
	}
	out := os.Stdout
	if cmd.Bool("json") {
		return printJSON(out, dangling)
	}
	if len(dangling) == 0 {
		_, err := fmt.Fprintln(out, "no dangling links")
		return err
	}
	for _, d := range dangling {
		if _, err := fmt.Fprintf(out, "%s -> [[%s]]\n", d.Source, d.Target); err != nil {
			return err
		}
	}
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.ServeMCP(ctx)
}

func runFlags(extra ...cli.Flag) []cli.Flag {
	return append(extra,
		&cli.StringFlag{Name: "chapter", Usage: "Chapter label recorded in every note"},
		&cli.BoolFlag{Name: "overwrite", Usage: "Replace existing notes instead of skipping them"},
		&cli.BoolFlag{Name: "create-moc", Usage: "Create or update the book's map of content"},
		&cli.BoolFlag{Name: "create-index", Usage: "Create the chapter index note"},
	)
}

func main() {
	cmd := &cli.Command{
		Name:    "bookzettel",
		Usage:   "Turn book chapters into linked atomic notes with a map of content",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory for notes", Sources: cli.EnvVars("BOOKZETTEL_OUTPUT")},
			&cli.StringFlag{Name: "book-title", Usage: "Title of the source book"},
			&cli.StringFlag{Name: "author", Usage: "Author of the source book"},
			&cli.StringFlag{Name: "template", Usage: "Path to a custom note template"},
		},
		Commands: []*cli.Command{
			{
				Name:      "generate",
				Usage:     "Extract a page range, analyze it and write notes",
				ArgsUsage: "<source.pdf|source.txt>",
				Flags: runFlags(
					&cli.IntFlag{Name: "start", Usage: "First page (0-indexed)"},
					&cli.IntFlag{Name: "end", Usage: "Last page (inclusive)"},
					&cli.StringFlag{Name: "provider", Usage: "Analysis provider (anthropic, openai, google, ollama)"},
					&cli.StringFlag{Name: "model", Usage: "Model name for the provider"},
				),
				Action: generate,
			},
			{
				Name:      "compile",
				Usage:     "Write notes from a JSON file of concept records",
				ArgsUsage: "<records.json|->",
				Flags:     runFlags(),
				Action:    compile,
			},
			{
				Name:  "moc",
				Usage: "Rebuild the map of content, and the chapter index when --chapter is set",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "chapter", Usage: "Chapter whose index note should be rebuilt"},
				},
				Action: rebuildMOC,
			},
			{
				Name:  "links",
				Usage: "Report links whose target concept has no note",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print the report as JSON"},
				},
				Action: links,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and keep the catalog in sync with the output directory",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdin/stdout",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
