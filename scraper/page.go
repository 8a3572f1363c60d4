package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/harvest/models"
	"github.com/ysmood/gson"
)

// renderBrowser renders a URL in a fresh incognito context.
//
// Order matters:
//
//  1. Incognito context       – isolated cookies/storage, disposed by defer
//  2. Stealth + UA + headers  – must precede navigation
//  3. Hijack router           – must precede navigation
//  4. Idle waiter             – registered before Navigate so no request is missed
//  5. Navigate + load         – bounded by NavigationTimeout
//  6. Wait policy             – bounded by SettleTimeout
//  7. Actions                 – "load more" clicks, scrolling
//  8. Capture                 – page.HTML(), title, final URL
func (r *Renderer) renderBrowser(ctx context.Context, req models.RenderRequest) (*models.RenderedPage, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	// ── 1. Incognito context ─────────────────────────────────────────
	incognito, err := browser.Incognito()
	if err != nil {
		if browserGone(err) {
			r.forgetBrowser(browser)
		}
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "failed to create browser context", err)
	}
	defer func() {
		if closeErr := incognito.Close(); closeErr != nil {
			slog.Warn("cleanup: failed to dispose browser context", "error", closeErr)
		}
	}()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "failed to open page", err)
	}

	// ── 2. Stealth, user agent, headers ──────────────────────────────
	if req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	ua := req.UserAgent
	if ua == "" {
		ua = r.cfg.UserAgent
	}
	if ua != "" {
		if uaErr := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); uaErr != nil {
			slog.Warn("user agent override failed", "error", uaErr)
		}
	}

	if len(req.Headers) > 0 {
		if hdrErr := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(req.Headers),
		}.Call(page)); hdrErr != nil {
			slog.Warn("extra headers failed", "error", hdrErr)
		}
	}

	// ── 3. Hijack router ─────────────────────────────────────────────
	router := setupHijack(page, r.cfg.BlockedResourceTypes, req.BlockAds)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 4. Idle waiter ───────────────────────────────────────────────
	// WaitRequestIdle and HijackRequests both use the Fetch domain, so the
	// idle waiter is only armed when no router is mounted.
	settleCtx, settleCancel := context.WithTimeout(ctx, r.cfg.NavigationTimeout+r.cfg.SettleTimeout)
	defer settleCancel()

	var waitIdle func()
	if req.Wait.Kind == models.WaitNetworkIdle && router == nil {
		waitIdle = page.Context(settleCtx).WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
	}

	// ── 5. Navigate ──────────────────────────────────────────────────
	navCtx, navCancel := context.WithTimeout(ctx, r.cfg.NavigationTimeout)
	defer navCancel()

	nav := page.Context(navCtx)
	if navErr := nav.Navigate(req.Source); navErr != nil {
		return nil, categorizeError(navErr, "navigation to target URL failed")
	}
	if loadErr := nav.WaitLoad(); loadErr != nil {
		return nil, categorizeError(loadErr, "page did not finish loading")
	}

	// ── 6. Wait policy ───────────────────────────────────────────────
	if err := applyWaitPolicy(settleCtx, page, req.Wait, waitIdle); err != nil {
		return nil, err
	}

	// ── 7. Actions ───────────────────────────────────────────────────
	if len(req.Actions) > 0 {
		if err := executeActions(ctx, page, req.Actions); err != nil {
			return nil, err
		}
	}

	// ── 8. Capture ───────────────────────────────────────────────────
	p := page.Context(ctx)
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(htmlErr, "failed to capture page HTML")
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.Source
	}

	slog.Debug("page rendered", "url", req.Source, "finalURL", finalURL, "bytes", len(rawHTML))

	return &models.RenderedPage{
		HTML:       rawHTML,
		Request:    req,
		RenderedAt: r.now().UTC(),
		FinalURL:   finalURL,
		Title:      evalStringOrEmpty(p, `() => document.title`),
	}, nil
}

// applyWaitPolicy blocks until the page satisfies the policy or ctx expires.
// Running out of time here means the content never settled.
func applyWaitPolicy(ctx context.Context, page *rod.Page, policy models.WaitPolicy, waitIdle func()) error {
	p := page.Context(ctx)

	var err error
	switch policy.Kind {
	case models.WaitFixedDelay:
		err = sleepCtx(ctx, policy.Delay)
	case models.WaitSelectorVisible:
		var el *rod.Element
		el, err = p.Element(policy.Selector)
		if err == nil {
			err = el.WaitVisible()
		}
	default:
		if waitIdle != nil {
			waitIdle()
			err = ctx.Err()
		} else {
			err = p.WaitDOMStable(300*time.Millisecond, 0.1)
		}
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewScrapeError(
			models.ErrCodeContentNeverSettled,
			"page never reached wait condition "+policy.String(),
			err,
		)
	}
	return categorizeError(err, "wait policy "+policy.String()+" failed")
}

// sleepCtx pauses for d or until ctx is done.
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

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
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

// categorizeError wraps raw errors into typed ScrapeErrors so callers can
// tell timeouts from navigation failures.
func categorizeError(err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "render canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
