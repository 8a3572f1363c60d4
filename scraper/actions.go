package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/harvest/models"
)

const (
	// actionTimeout is the per-step deadline.
	actionTimeout = 10 * time.Second

	defaultMaxClicks  = 50
	defaultClickPause = 1500 * time.Millisecond
)

// executeActions runs the ordered list of browser actions on the page.
func executeActions(ctx context.Context, page *rod.Page, actions []models.Action) error {
	for i, action := range actions {
		if err := executeSingleAction(ctx, page, action); err != nil {
			return categorizeError(err, fmt.Sprintf("action %d (%s) failed after %d completed", i, action.Type, i))
		}
	}
	return nil
}

// executeSingleAction dispatches a single action.
func executeSingleAction(ctx context.Context, page *rod.Page, action models.Action) error {
	switch action.Type {
	case "wait":
		return execWait(ctx, page, action)
	case "click":
		return execClick(ctx, page, action)
	case "click_all":
		return execClickAll(ctx, page, action)
	case "scroll_bottom":
		return execScrollBottom(ctx, page, action)
	case "execute_js":
		return execJS(ctx, page, action)
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

// execWait either sleeps for a duration or waits for a CSS selector to appear.
func execWait(ctx context.Context, page *rod.Page, action models.Action) error {
	if action.Selector != "" {
		actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		return page.Context(actionCtx).WaitElementsMoreThan(action.Selector, 0)
	}
	return sleepCtx(ctx, time.Duration(action.Milliseconds)*time.Millisecond)
}

// execClick finds the element matching the selector and clicks it.
func execClick(ctx context.Context, page *rod.Page, action models.Action) error {
	if action.Selector == "" {
		return fmt.Errorf("click action requires a selector")
	}
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	p := page.Context(actionCtx)

	var (
		el  *rod.Element
		err error
	)
	if action.Text != "" {
		el, err = p.ElementR(action.Selector, action.Text)
	} else {
		el, err = p.Element(action.Selector)
	}
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// execClickAll keeps clicking a "load more" style control until it is gone
// or MaxClicks is reached, pausing after every click so new items render.
func execClickAll(ctx context.Context, page *rod.Page, action models.Action) error {
	if action.Selector == "" {
		return fmt.Errorf("click_all action requires a selector")
	}
	maxClicks := action.MaxClicks
	if maxClicks <= 0 {
		maxClicks = defaultMaxClicks
	}
	pause := time.Duration(action.Milliseconds) * time.Millisecond
	if pause <= 0 {
		pause = defaultClickPause
	}

	clicks := 0
	for clicks < maxClicks {
		done, err := clickOnce(ctx, page, action)
		if err != nil {
			return err
		}
		if done {
			break
		}
		clicks++
		if err := sleepCtx(ctx, pause); err != nil {
			return err
		}
		if err := scrollToBottom(ctx, page); err != nil {
			return err
		}
	}
	slog.Debug("click_all finished", "selector", action.Selector, "clicks", clicks)
	return nil
}

// clickOnce clicks the first match if there is one. done is true when no
// matching element is left on the page.
func clickOnce(ctx context.Context, page *rod.Page, action models.Action) (done bool, err error) {
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	p := page.Context(actionCtx)

	var (
		has bool
		el  *rod.Element
	)
	if action.Text != "" {
		has, el, err = p.HasR(action.Selector, action.Text)
	} else {
		has, el, err = p.Has(action.Selector)
	}
	if err != nil {
		return false, err
	}
	if !has {
		return true, nil
	}

	visible, err := el.Visible()
	if err != nil || !visible {
		return true, nil
	}
	_ = el.ScrollIntoView()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("click %q: %w", action.Selector, err)
	}
	return false, nil
}

// execScrollBottom scrolls to the bottom until the document stops growing,
// which triggers lazy-loaded content.
func execScrollBottom(ctx context.Context, page *rod.Page, action models.Action) error {
	rounds := action.MaxClicks
	if rounds <= 0 {
		rounds = defaultMaxClicks
	}
	pause := time.Duration(action.Milliseconds) * time.Millisecond
	if pause <= 0 {
		pause = 500 * time.Millisecond
	}

	last := -1
	for i := 0; i < rounds; i++ {
		if err := scrollToBottom(ctx, page); err != nil {
			return err
		}
		if err := sleepCtx(ctx, pause); err != nil {
			return err
		}
		res, err := page.Context(ctx).Eval(`() => document.body.scrollHeight`)
		if err != nil {
			return fmt.Errorf("read scroll height: %w", err)
		}
		height := res.Value.Int()
		if height == last {
			return nil
		}
		last = height
	}
	return nil
}

func scrollToBottom(ctx context.Context, page *rod.Page) error {
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	_, err := page.Context(actionCtx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

// execJS evaluates arbitrary JavaScript in the page context.
func execJS(ctx context.Context, page *rod.Page, action models.Action) error {
	if action.Code == "" {
		return fmt.Errorf("execute_js action requires code")
	}
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	_, err := page.Context(actionCtx).Eval(action.Code)
	return err
}
