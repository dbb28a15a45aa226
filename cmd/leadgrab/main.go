package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/leadgrab/leadgrab/config"
	"github.com/leadgrab/leadgrab/models"
	"github.com/leadgrab/leadgrab/runner"
	"github.com/leadgrab/leadgrab/scraper"
	"github.com/leadgrab/leadgrab/store"
	"github.com/leadgrab/leadgrab/webhook"
	"github.com/spf13/cobra"
)

var version = "dev"

// errNoRecords makes an empty run exit non-zero so automation can tell it
// apart from a productive one. Returned as an error, never via os.Exit:
// the rendering session must be closed on every exit path.
var errNoRecords = errors.New("run produced no records")

var (
	maxPages  int
	dataDir   string
	fetchMode string
	headed    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "leadgrab [query]",
		Short:   "Scrape business name/phone records from search results",
		Version: version,
		Long: `leadgrab issues paginated search queries against a search engine,
extracts business name/phone/image records from the rendered results,
deduplicates them, and writes one timestamped JSON file per run under
the data directory.`,
		Example: `  # Scrape with an explicit query
  leadgrab "plumber paris"

  # Cap the page count and write elsewhere
  leadgrab --max-pages 3 --data-dir /tmp/out "electricien lyon"

  # Plain-HTTP fetching (no browser; JS-rendered content invisible)
  leadgrab --fetch-mode http "bakery marseille"`,
		Args:         cobra.ArbitraryArgs,
		RunE:         run,
		SilenceUsage: true,
	}

	rootCmd.Flags().IntVar(&maxPages, "max-pages", 0, "Max result pages per run (0 = config default)")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "Output directory (default from config)")
	rootCmd.Flags().StringVar(&fetchMode, "fetch-mode", "", "Renderer: browser or http (default from config)")
	rootCmd.Flags().BoolVar(&headed, "headed", false, "Show the browser UI (disable headless mode)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	initLogger(cfg.Log)

	if maxPages > 0 {
		cfg.Scraper.MaxPages = maxPages
	}
	if dataDir != "" {
		cfg.Scraper.DataDir = dataDir
	}
	if fetchMode != "" {
		cfg.Scraper.FetchMode = fetchMode
	}
	if headed {
		cfg.Browser.Headless = false
	}

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		query = cfg.Scraper.DefaultQuery
		slog.Info("no query supplied, using default", "query", query)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	renderer, closeRenderer, err := newRenderer(cfg)
	if err != nil {
		slog.Error("failed to open rendering session", "error", err)
		return err
	}
	defer closeRenderer()

	return execute(ctx, cfg, renderer, query)
}

// execute performs one scrape run end to end: scrape, persist, notify.
// Returns errNoRecords when the run produced nothing.
func execute(ctx context.Context, cfg *config.Config, renderer runner.Renderer, query string) error {
	result := runner.New(renderer, cfg.Scraper).Run(ctx, query)

	// Partial results are always persisted, even after a failed run.
	fileName, err := store.WriteRecords(cfg.Scraper.DataDir, query, result.Records, time.Now())
	if err != nil {
		slog.Error("failed to write run output", "error", err)
		return err
	}
	result.OutputFile = fileName
	slog.Info("run output saved", "file", fileName, "records", len(result.Records))

	notify(cfg, result)

	if len(result.Records) == 0 {
		return errNoRecords
	}
	return nil
}

// newRenderer builds the configured renderer and its cleanup func.
func newRenderer(cfg *config.Config) (runner.Renderer, func(), error) {
	if cfg.Scraper.FetchMode == "http" {
		return scraper.NewHTTPFetcher(cfg.Browser.Proxy), func() {}, nil
	}
	session, err := scraper.NewSession(cfg.Browser, cfg.Scraper)
	if err != nil {
		return nil, nil, err
	}
	return session, session.Close, nil
}

// notify delivers the run.completed webhook if configured, waiting for the
// delivery goroutine so the process does not exit under it.
func notify(cfg *config.Config, result *models.RunResult) {
	if cfg.Webhook.URL == "" {
		return
	}
	done := webhook.DeliverAsync(cfg.Webhook.URL, cfg.Webhook.Secret, &webhook.Event{
		Type:      "run.completed",
		Query:     result.Query,
		Records:   len(result.Records),
		Pages:     result.PagesFetched,
		StopWhy:   result.StopReason,
		File:      result.OutputFile,
		Timestamp: time.Now().Unix(),
	})
	<-done
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
