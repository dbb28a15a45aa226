// Package runner drives the scrape loop: fetch a result page, extract
// records, deduplicate, paginate, stop. Strictly sequential; one page in
// flight at a time.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/leadgrab/leadgrab/config"
	"github.com/leadgrab/leadgrab/extract"
	"github.com/leadgrab/leadgrab/models"
	"github.com/leadgrab/leadgrab/scraper"
	"github.com/leadgrab/leadgrab/store"
)

// Renderer fetches one URL and returns its rendered markup. Satisfied by
// scraper.Session, scraper.HTTPFetcher and test stubs.
type Renderer interface {
	Render(ctx context.Context, url string) (*scraper.RenderResult, error)
}

// Runner owns one scrape run. The renderer is borrowed, not owned: the
// caller opens and closes it.
type Runner struct {
	renderer Renderer
	cfg      config.ScraperConfig
}

// New creates a Runner on top of a renderer.
func New(r Renderer, cfg config.ScraperConfig) *Runner {
	return &Runner{renderer: r, cfg: cfg}
}

// Run scrapes paginated results for query until a stop condition fires.
//
// A run never fails outright: any render or parse error ends the loop and
// the accumulated records ride back on the RunResult together with the
// failure reason. Persistence is the caller's call.
func (r *Runner) Run(ctx context.Context, query string) *models.RunResult {
	result := &models.RunResult{
		Query:   query,
		Records: []models.Record{},
	}

	slog.Info("run starting", "query", query, "maxPages", r.cfg.MaxPages)
	start := time.Now()

	offset := 0
	page := 1

	for {
		pageURL := scraper.SearchURL(query, offset)
		slog.Info("fetching page", "page", page, "offset", offset)

		rendered, err := r.renderer.Render(ctx, pageURL)
		if err != nil {
			slog.Error("render failed, stopping", "page", page, "error", err)
			result.StopReason = models.StopRenderFail
			result.Err = err
			break
		}
		result.PagesFetched = page

		doc, err := extract.Parse(rendered.HTML)
		if err != nil {
			slog.Error("parse failed, stopping", "page", page, "error", err)
			result.StopReason = models.StopRenderFail
			result.Err = err
			break
		}

		if page == 1 {
			r.snapshot(store.SnapshotFirstPage, rendered.HTML)
		}

		if extract.IsBlocked(rendered.Title, rendered.FinalURL, doc) {
			slog.Warn("anti-automation challenge detected, stopping",
				"page", page, "title", rendered.Title)
			r.snapshot(store.SnapshotBlocked, rendered.HTML)
			result.StopReason = models.StopBlocked
			break
		}

		blocks := extract.Blocks(doc)
		if len(blocks) == 0 {
			slog.Info("no result blocks, stopping", "page", page)
			result.StopReason = models.StopExhausted
			break
		}

		newThisPage := 0
		for _, block := range blocks {
			rec, ok := extract.Business(block)
			if !ok {
				continue
			}
			if containsRecord(result.Records, rec) {
				continue
			}
			result.Records = append(result.Records, rec)
			newThisPage++
			slog.Info("record found", "name", rec.Name, "phone", rec.Phone, "page", page)
		}
		slog.Info("page scraped",
			"page", page, "blocks", len(blocks), "new", newThisPage, "total", len(result.Records))

		// Zero new records means either exhausted results or a repeating
		// page; the two are indistinguishable here, so both stop the loop.
		if newThisPage == 0 {
			result.StopReason = models.StopNoNew
			break
		}

		if page >= r.cfg.MaxPages {
			result.StopReason = models.StopMaxPages
			break
		}

		page++
		offset += r.cfg.PageSize

		if err := pause(ctx, r.cfg.PageDelay); err != nil {
			result.StopReason = models.StopCanceled
			result.Err = err
			break
		}
	}

	slog.Info("run finished",
		"query", query,
		"records", len(result.Records),
		"pages", result.PagesFetched,
		"stop", result.StopReason,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return result
}

// snapshot writes a diagnostic HTML dump, logging instead of failing.
func (r *Runner) snapshot(name, rawHTML string) {
	if err := store.WriteSnapshot(r.cfg.DataDir, name, rawHTML); err != nil {
		slog.Warn("snapshot write failed", "name", name, "error", err)
		return
	}
	slog.Info("snapshot written", "name", name)
}

func containsRecord(records []models.Record, rec models.Record) bool {
	for _, existing := range records {
		if existing.Equal(rec) {
			return true
		}
	}
	return false
}

// pause sleeps for d or until ctx is done. Fixed inter-page pacing; there
// is deliberately no backoff.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
