package interfaces

import (
	"context"
	"time"
)

// PageInfo describes the controlled tab's current document.
type PageInfo struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	ReadyState string `json:"readyState"`
}

// PageSession is the page execution capability of one controlled browser
// tab. Fetches run inside the page so the tab's live cookies and session
// are used. Hosts other than chromedp (an extension bridge, an embedded
// webview) can implement this differently.
type PageSession interface {
	// TargetID identifies the controlled tab.
	TargetID() string

	// Navigate loads the given URL and waits for the page load to
	// complete, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// FetchAsPage performs an HTTP GET from within the page's execution
	// context and returns the body as a string (JSON re-serialized when
	// the response is JSON, raw text otherwise).
	FetchAsPage(ctx context.Context, url string) (string, error)

	// PageInfo returns the tab's current url/title/readyState.
	PageInfo(ctx context.Context) (*PageInfo, error)

	// Focus brings the tab to the foreground.
	Focus(ctx context.Context) error

	// Closed is closed when the tab goes away, including when the user
	// closes it outside our control.
	Closed() <-chan struct{}

	// Close tears the tab down.
	Close() error
}

// TabManager opens controlled tabs. The engine owns at most one session
// at a time.
type TabManager interface {
	// OpenTab creates a new controlled tab at the given URL.
	OpenTab(ctx context.Context, url string) (PageSession, error)

	// Close shuts down the underlying browser resources.
	Close() error
}
