package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Renderer turns a RenderRequest into a settled HTML snapshot.
//
// URL sources are rendered in a shared Chromium process that is launched on
// first use; every render gets its own incognito context. File sources never
// touch the browser. Renderer is safe for concurrent use.
type Renderer struct {
	browserCfg  config.BrowserConfig
	cfg         config.RendererConfig
	httpFetcher *httpFetcher

	mu      sync.Mutex
	browser *rod.Browser

	slots  chan struct{}
	active atomic.Int32
	now    func() time.Time
}

// NewRenderer creates a renderer. The browser is not launched until the
// first browser-mode render.
func NewRenderer(browserCfg config.BrowserConfig, cfg config.RendererConfig) *Renderer {
	maxRenders := browserCfg.MaxRenders
	if maxRenders <= 0 {
		maxRenders = 1
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 30 * time.Second
	}
	return &Renderer{
		browserCfg:  browserCfg,
		cfg:         cfg,
		httpFetcher: newHTTPFetcher(browserCfg.DefaultProxy),
		slots:       make(chan struct{}, maxRenders),
		now:         time.Now,
	}
}

// Render loads the request's source and returns the settled page.
func (r *Renderer) Render(ctx context.Context, req models.RenderRequest) (*models.RenderedPage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !req.IsURL() {
		return r.renderFile(req)
	}

	if req.Mode == models.FetchHTTP {
		return r.renderHTTP(ctx, req)
	}
	return r.renderBrowser(ctx, req)
}

// renderFile returns the file's bytes untouched. The wait policy does not
// apply to static snapshots.
func (r *Renderer) renderFile(req models.RenderRequest) (*models.RenderedPage, error) {
	path, err := req.FilePath()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, err.Error(), err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeNavigation,
			fmt.Sprintf("failed to read snapshot %s", path),
			err,
		)
	}
	slog.Debug("loaded static snapshot", "path", path, "bytes", len(data))

	return &models.RenderedPage{
		HTML:       string(data),
		Request:    req,
		RenderedAt: r.now().UTC(),
		FinalURL:   req.Source,
		Title:      extractTitle(data),
	}, nil
}

// renderHTTP fetches the page without executing scripts.
func (r *Renderer) renderHTTP(ctx context.Context, req models.RenderRequest) (*models.RenderedPage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.NavigationTimeout)
	defer cancel()

	ua := req.UserAgent
	if ua == "" {
		ua = r.cfg.UserAgent
	}
	res, err := r.httpFetcher.fetch(ctx, req.Source, req.Headers, ua)
	if err != nil {
		return nil, categorizeError(err, "http fetch failed")
	}
	info := inspectHTML(res.body)
	if needsBrowser(res.body, info) {
		slog.Warn("page looks script-rendered, browser mode may be needed",
			"url", req.Source,
		)
	}

	return &models.RenderedPage{
		HTML:       string(res.body),
		Request:    req,
		RenderedAt: r.now().UTC(),
		FinalURL:   res.finalURL,
		Title:      info.title,
	}, nil
}

// acquire reserves one render slot.
func (r *Renderer) acquire(ctx context.Context) error {
	select {
	case r.slots <- struct{}{}:
		r.active.Add(1)
		return nil
	case <-ctx.Done():
		return categorizeError(ctx.Err(), "waiting for a free render slot")
	}
}

func (r *Renderer) release() {
	r.active.Add(-1)
	<-r.slots
}

// ensureBrowser launches Chromium with the stealth flag set on first use.
func (r *Renderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().
		Headless(r.browserCfg.Headless).
		NoSandbox(r.browserCfg.NoSandbox)

	if r.browserCfg.BrowserBin != "" {
		l = l.Bin(r.browserCfg.BrowserBin)
	}
	if r.browserCfg.DefaultProxy != "" {
		l = l.Proxy(r.browserCfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "failed to launch browser", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "failed to connect to browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "maxRenders", cap(r.slots))

	r.browser = browser
	return browser, nil
}

// forgetBrowser drops a browser whose connection died so the next render
// relaunches Chromium. A browser already replaced by another render is left
// alone.
func (r *Renderer) forgetBrowser(b *rod.Browser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != b {
		return
	}
	slog.Warn("browser connection lost, relaunching on next render")
	r.browser = nil
}

// browserGone reports whether err is a transport failure rather than a
// protocol error returned by a live browser.
func browserGone(err error) bool {
	var cdpErr *cdp.Error
	return err != nil && !errors.As(err, &cdpErr)
}

// Stats returns a snapshot of browser usage.
func (r *Renderer) Stats() models.BrowserStats {
	r.mu.Lock()
	launched := r.browser != nil
	r.mu.Unlock()
	return models.BrowserStats{
		Launched:      launched,
		ActiveRenders: int(r.active.Load()),
		MaxRenders:    cap(r.slots),
	}
}

// Close kills the browser process if one was launched and drops idle HTTP
// connections.
func (r *Renderer) Close() {
	r.httpFetcher.close()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return
	}
	slog.Info("renderer shutting down: closing browser")
	if err := r.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	r.browser = nil
}
