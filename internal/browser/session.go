// -----------------------------------------------------------------------
// One controlled tab - navigation, in-page fetch, page info
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/interfaces"
)

// fetchScript performs a fetch inside the page so the tab's cookies and
// session are used. JSON bodies are re-serialized so the caller always
// sees canonical JSON; anything else comes back as raw text.
const fetchScript = `
	fetch(%q).then(async (resp) => {
		const text = await resp.text();
		try {
			return JSON.stringify(JSON.parse(text));
		} catch (e) {
			return text;
		}
	})`

const pageInfoScript = `JSON.stringify({
	url: window.location.href,
	title: document.title,
	readyState: document.readyState,
})`

// Session is one controlled browser tab.
type Session struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	targetID  string
	closed    chan struct{}
	logger    arbor.ILogger
}

// newSession creates a tab in the given browser context and navigates it
// to the start URL.
func newSession(browserCtx context.Context, url string, logger arbor.ILogger) (*Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)

	if err := chromedp.Run(tabCtx, chromedp.Navigate(url)); err != nil {
		tabCancel()
		return nil, fmt.Errorf("initial navigation failed: %w", err)
	}

	targetID := string(chromedp.FromContext(tabCtx).Target.TargetID)

	s := &Session{
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		targetID:  targetID,
		closed:    make(chan struct{}),
		logger:    logger,
	}

	// The tab context is cancelled when the target goes away, including
	// when the user closes the tab by hand.
	go func() {
		<-tabCtx.Done()
		close(s.closed)
	}()

	return s, nil
}

// TargetID identifies the controlled tab.
func (s *Session) TargetID() string {
	return s.targetID
}

// Navigate loads the URL and waits for the document to be ready, bounded
// by timeout.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("page load timed out after %s: %w", timeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// FetchAsPage performs an HTTP GET from within the page's execution
// context and returns the body as a string.
func (s *Session) FetchAsPage(ctx context.Context, url string) (string, error) {
	var body string
	err := chromedp.Run(s.tabCtx,
		chromedp.Evaluate(fmt.Sprintf(fetchScript, url), &body,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithAwaitPromise(true)
			}),
	)
	if err != nil {
		return "", fmt.Errorf("in-page fetch failed: %w", err)
	}
	return body, nil
}

// PageInfo returns the tab's current url/title/readyState.
func (s *Session) PageInfo(ctx context.Context) (*interfaces.PageInfo, error) {
	var raw string
	err := chromedp.Run(s.tabCtx, chromedp.Evaluate(pageInfoScript, &raw))
	if err != nil {
		return nil, fmt.Errorf("failed to read page info: %w", err)
	}

	var info interfaces.PageInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("failed to decode page info: %w", err)
	}
	return &info, nil
}

// Focus brings the tab to the foreground.
func (s *Session) Focus(ctx context.Context) error {
	if err := chromedp.Run(s.tabCtx, page.BringToFront()); err != nil {
		return fmt.Errorf("failed to focus tab: %w", err)
	}
	return nil
}

// Closed is closed when the tab goes away.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Close tears the tab down.
func (s *Session) Close() error {
	s.tabCancel()
	s.logger.Debug().Str("tab_id", s.targetID).Msg("Controlled tab closed")
	return nil
}
