package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/leadgrab/leadgrab/config"
	"github.com/leadgrab/leadgrab/models"
	"github.com/ysmood/gson"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Session owns one headless browser and one page, reused for every result
// page of a run. It is driven sequentially by a single runner.
type Session struct {
	browser    *rod.Browser
	page       *rod.Page
	router     *rod.HijackRouter
	scraperCfg config.ScraperConfig
}

// NewSession launches a headless browser and prepares the single page used
// for the whole run: stealth script, extra headers, resource blocking.
func NewSession(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) (*Session, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.Proxy != "" {
		l = l.Proxy(browserCfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-accelerated-2d-canvas"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), "1920,1080")
	l.Set(flags.Flag("user-agent"), userAgent)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to create page",
			err,
		)
	}

	// Stealth JS must be installed before any navigation.
	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth",
			"error", evalErr,
		)
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language":           "en-US,en;q=0.9",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Referer":                   "https://www.google.com/",
			"DNT":                       "1",
			"Upgrade-Insecure-Requests": "1",
		}),
	}.Call(page)

	return &Session{
		browser:    browser,
		page:       page,
		router:     mountHijack(page),
		scraperCfg: scraperCfg,
	}, nil
}

// Render navigates the session page to rawURL, waits for client-rendered
// content to settle, and returns the rendered markup.
//
// The wait is a fixed settle delay: the result page exposes no reliable
// "content loaded" signal, so WaitDOMStable is attempted best-effort and the
// remainder of the delay is slept regardless.
func (s *Session) Render(ctx context.Context, rawURL string) (*RenderResult, error) {
	navCtx, cancel := context.WithTimeout(ctx, s.scraperCfg.NavTimeout)
	defer cancel()

	p := s.page.Context(navCtx)

	if err := p.Navigate(rawURL); err != nil {
		return nil, categorizeError(err, "navigation to result page failed")
	}

	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", stableErr,
		)
	}
	if err := sleepCtx(ctx, s.scraperCfg.SettleDelay); err != nil {
		return nil, categorizeError(err, "settle delay interrupted")
	}

	html, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to extract page HTML")
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = rawURL
	}

	return &RenderResult{
		HTML:        html,
		Title:       title,
		FinalURL:    finalURL,
		FetchMethod: "browser",
	}, nil
}

// Close stops the hijack router and kills the browser process. It is safe
// to call on every exit path of a run.
func (s *Session) Close() {
	if s.router != nil {
		_ = s.router.Stop()
	}
	if err := s.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("browser session closed")
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
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

// categorizeError wraps raw errors into typed ScrapeErrors so callers can
// distinguish timeouts from navigation failures.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "run canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}

// SearchURL builds a paginated search-results URL for query at the given
// result offset.
func SearchURL(query string, offset int) string {
	u := url.URL{
		Scheme: "https",
		Host:   "www.google.com",
		Path:   "/search",
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("udm", "1")
	q.Set("start", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String()
}
