// internal/session/manager.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/roelvdh/marktwatch/internal/config"
	"github.com/roelvdh/marktwatch/internal/scrape"
)

// Manager owns the single long-lived browser session. It guarantees that
// whenever a target page is fetched, it is fetched from an authenticated
// browser, with as few redundant logins as possible.
//
// State transitions: no browser -> browser ready (first use); logged out ->
// logging in -> logged in (login attempt); logged in -> logged out when the
// session outlives the login timeout or the site logs us out. The browser
// handle itself is recycled after a separate, longer restart age regardless
// of login state.
type Manager struct {
	cfg *config.Config

	mu   sync.Mutex
	cond *sync.Cond // broadcast when an in-flight login finishes

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	browserStart  time.Time

	loggedIn      bool
	loginInFlight bool
	lastLoginAt   time.Time
}

// NewManager creates a Manager. The browser is not started until first use.
func NewManager(cfg *config.Config) *Manager {
	m := &Manager{cfg: cfg}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// EnsureReady makes sure a sufficiently fresh browser exists and that the
// session is logged in. Callers that race with an in-flight login block until
// that login completes instead of starting a second one.
func (m *Manager) EnsureReady(ctx context.Context, site *config.Website) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureBrowserLocked(ctx); err != nil {
		return err
	}

	if m.loggedIn && time.Since(m.lastLoginAt) > m.cfg.LoginTimeout {
		log.Info().Time("last_login", m.lastLoginAt).Msg("Login timeout elapsed, session considered expired")
		m.loggedIn = false
	}

	if m.loggedIn {
		return nil
	}

	// Another caller may already be logging in; wait for its outcome rather
	// than racing a second login against the same browser.
	for m.loginInFlight {
		m.cond.Wait()
	}
	if m.loggedIn {
		return nil
	}

	m.loginInFlight = true
	m.mu.Unlock()
	err := m.login(ctx, site)
	m.mu.Lock()
	m.loginInFlight = false
	m.cond.Broadcast()

	if err != nil {
		m.loggedIn = false
		return err
	}
	m.loggedIn = true
	m.lastLoginAt = time.Now()
	return nil
}

// FetchTarget navigates the authenticated browser to url and returns the
// rendered page HTML. A mid-session logout detected on the landed page
// triggers one re-login and re-navigation before giving up; within the grace
// window after a login, probe failures are attributed to slow-loading pages
// and ignored.
func (m *Manager) FetchTarget(ctx context.Context, site *config.Website, url string) (string, error) {
	html, err := m.navigate(ctx, url)
	if err != nil {
		return "", err
	}

	if IsLoggedInHTML(html) {
		return html, nil
	}

	m.mu.Lock()
	withinGrace := time.Since(m.lastLoginAt) < m.cfg.LoginGrace
	m.mu.Unlock()
	if withinGrace {
		log.Debug().Str("url", url).Msg("Login markers missing but within grace window, keeping page")
		return html, nil
	}

	log.Warn().Str("url", url).Msg("Session expired mid-run, re-authenticating")
	m.Invalidate()
	if err := m.EnsureReady(ctx, site); err != nil {
		return "", err
	}
	return m.navigate(ctx, url)
}

// Invalidate marks the session as logged out, forcing the next EnsureReady
// call to perform a fresh login.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggedIn = false
}

// Close tears down the browser. Safe to call on a manager that never started.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeBrowserLocked()
}

// navigate loads url in the shared browser and captures the page HTML.
func (m *Manager) navigate(ctx context.Context, url string) (string, error) {
	m.mu.Lock()
	browserCtx := m.browserCtx
	m.mu.Unlock()
	if browserCtx == nil {
		return "", fmt.Errorf("browser not started")
	}

	navCtx, cancel := context.WithTimeout(browserCtx, m.cfg.NavTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Give client-side rendering a moment to fill the result list.
			time.Sleep(500 * time.Millisecond)
			return nil
		}),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		// Treat context expiry during navigation the same as any other page
		// failure; the enclosing check cycle aborts and retries next tick.
		if ctx.Err() != nil {
			return "", fmt.Errorf("navigation cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	return html, nil
}

// ensureBrowserLocked starts the browser if absent, or recycles it once it
// exceeds the restart age. Called with m.mu held.
func (m *Manager) ensureBrowserLocked(ctx context.Context) error {
	if m.browserCtx != nil && time.Since(m.browserStart) < m.cfg.BrowserRestartAge {
		return nil
	}

	if m.browserCtx != nil {
		log.Info().Dur("age", time.Since(m.browserStart)).Msg("Recycling aged browser")
	}
	m.closeBrowserLocked()

	chromePath := m.cfg.ChromePath
	if chromePath == "" {
		chromePath = FindChrome()
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.UserAgent(m.cfg.UserAgent),
	}
	if chromePath != "" {
		allocOpts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(chromePath)}, allocOpts...)
	}
	if m.cfg.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Warm up so the first real navigation doesn't pay the startup cost.
	warmCtx, cancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(warmCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("%w: %v", scrape.ErrBrowserNotFound, err)
	}

	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel
	m.browserStart = time.Now()
	m.loggedIn = false

	// Restoring persisted cookies may let us skip the login entirely. The
	// original login time is kept so the 24h timeout still applies.
	if loginAt, ok := m.restoreSession(browserCtx); ok {
		m.loggedIn = true
		m.lastLoginAt = loginAt
	}

	log.Info().Str("chrome", chromePath).Bool("headless", m.cfg.Headless).Msg("Browser started")
	return nil
}

// closeBrowserLocked tears the browser down best-effort. Called with m.mu held.
func (m *Manager) closeBrowserLocked() {
	if m.browserCancel != nil {
		m.browserCancel()
		m.browserCancel = nil
	}
	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCancel = nil
	}
	m.browserCtx = nil
	m.loggedIn = false
}
