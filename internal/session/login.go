// internal/session/login.go
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/roelvdh/marktwatch/internal/config"
	"github.com/roelvdh/marktwatch/internal/scrape"
)

// DOM markers that only appear for an authenticated user.
var loggedInMarkers = []string{
	`[class*="user-menu"]`,
	`[class*="UserMenu"]`,
	`[class*="avatar"]`,
	`a[href*="logout"]`,
	`a[href*="uitloggen"]`,
}

// DOM markers of the login page itself. Their presence overrides any
// logged-in marker: some sites render the user-menu shell on the login page.
var loginPageMarkers = []string{
	`form[action*="login"]`,
	`form[action*="inloggen"]`,
	`input[type="password"]`,
}

// login navigates to the login URL, submits the configured credentials and
// verifies the result by probing the landed page's DOM. On success the
// browser cookies are persisted so a process restart can resume the session.
func (m *Manager) login(ctx context.Context, site *config.Website) error {
	site.ResolveCredentials()
	if site.LoginURL == "" || site.Username == "" || site.Password == "" {
		return scrape.NewAuthError("login URL or credentials not configured", nil)
	}

	m.mu.Lock()
	browserCtx := m.browserCtx
	m.mu.Unlock()
	if browserCtx == nil {
		return scrape.NewAuthError("browser not started", nil)
	}

	userSel, passSel, submitSel := site.Selectors()

	log.Info().Str("url", site.LoginURL).Msg("Logging in")

	loginCtx, cancel := context.WithTimeout(browserCtx, m.cfg.NavTimeout)
	defer cancel()

	var landedHTML string
	err := chromedp.Run(loginCtx,
		network.Enable(),
		chromedp.Navigate(site.LoginURL),
		chromedp.WaitVisible(userSel, chromedp.ByQuery),
		chromedp.SendKeys(userSel, site.Username, chromedp.ByQuery),
		chromedp.SendKeys(passSel, site.Password, chromedp.ByQuery),
		chromedp.Click(submitSel, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Submit triggers a navigation; wait for the landing page to settle.
			time.Sleep(2 * time.Second)
			return nil
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &landedHTML, chromedp.ByQuery),
	)
	if err != nil {
		return scrape.NewAuthError("login navigation failed", err)
	}

	if !IsLoggedInHTML(landedHTML) {
		return scrape.NewAuthError("login verification failed: authenticated markers absent", nil)
	}

	if err := m.persistSession(loginCtx, site.LoginURL); err != nil {
		// Session persistence is an optimisation; a failure here must not
		// fail the login.
		log.Warn().Err(err).Msg("Failed to persist session cookies")
	}

	log.Info().Msg("Login successful")
	return nil
}

// IsLoggedInHTML reports whether the page HTML shows an authenticated
// session: at least one authenticated-only marker and no login-page marker.
func IsLoggedInHTML(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return IsLoggedIn(doc)
}

// IsLoggedIn is the document-level probe behind IsLoggedInHTML.
func IsLoggedIn(doc *goquery.Document) bool {
	for _, marker := range loginPageMarkers {
		if doc.Find(marker).Length() > 0 {
			return false
		}
	}
	for _, marker := range loggedInMarkers {
		if doc.Find(marker).Length() > 0 {
			return true
		}
	}
	return false
}

// persistSession captures the browser's cookies and stores them via the
// session store.
func (m *Manager) persistSession(ctx context.Context, loginURL string) error {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("get cookies: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies captured")
	}

	data := &SessionData{
		Name:      sessionName,
		URL:       loginURL,
		CreatedAt: time.Now(),
		Cookies:   make([]Cookie, len(cookies)),
	}
	var maxExpires float64
	for i, c := range cookies {
		data.Cookies[i] = Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > maxExpires {
			maxExpires = c.Expires
		}
	}
	if maxExpires > 0 {
		data.ExpiresAt = time.Unix(int64(maxExpires), 0)
	}

	return SaveSession(data)
}
