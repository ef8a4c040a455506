// -----------------------------------------------------------------------
// Chrome tab manager - owns the browser process and opens controlled tabs
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/interfaces"
)

// ManagerConfig holds configuration for the browser manager
type ManagerConfig struct {
	Headless  bool   `json:"headless"`
	UserAgent string `json:"user_agent"`
}

// Manager owns a single Chrome process and creates controlled tabs in it.
// The browser is started lazily on the first OpenTab call.
type Manager struct {
	config          ManagerConfig
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	started         bool
	mu              sync.Mutex
	logger          arbor.ILogger
}

// NewManager creates a new browser manager
func NewManager(config ManagerConfig, logger arbor.ILogger) *Manager {
	return &Manager{
		config: config,
		logger: logger,
	}
}

// startBrowser launches the Chrome process (must be called with mutex held)
func (m *Manager) startBrowser() error {
	if m.started {
		return nil
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if m.config.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(m.config.UserAgent))
	}

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx)

	// Start the browser process with a throwaway navigation
	if err := chromedp.Run(m.browserCtx, chromedp.Navigate("about:blank")); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		m.started = false
		return fmt.Errorf("failed to start browser: %w", err)
	}

	m.started = true
	m.logger.Info().Bool("headless", m.config.Headless).Msg("Browser started")

	return nil
}

// OpenTab creates a new controlled tab and navigates it to the given URL.
func (m *Manager) OpenTab(ctx context.Context, url string) (interfaces.PageSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.startBrowser(); err != nil {
		return nil, err
	}

	session, err := newSession(m.browserCtx, url, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	m.logger.Info().
		Str("tab_id", session.TargetID()).
		Str("url", url).
		Msg("Controlled tab opened")

	return session, nil
}

// Close shuts down the browser process.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}

	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}
	m.started = false

	m.logger.Info().Msg("Browser shut down")
	return nil
}
