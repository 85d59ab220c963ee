package config

import (
	"os"

	"github.com/roelvdh/marktwatch/pkg/models"
)

// Setting store keys. Each key maps to one JSON-serialized section that the
// dashboard can edit at runtime.
const (
	KeyWebsite  = "website"
	KeySchedule = "schedule"
	KeyEmail    = "email"
	KeyTheme    = "theme"
)

// Website holds the target-site credentials, login selectors, and the saved
// searches to monitor.
type Website struct {
	LoginURL         string          `json:"loginUrl"`
	Username         string          `json:"username"`
	Password         string          `json:"password"`
	UsernameSelector string          `json:"usernameSelector,omitempty"`
	PasswordSelector string          `json:"passwordSelector,omitempty"`
	SubmitSelector   string          `json:"submitSelector,omitempty"`
	Targets          []models.Target `json:"targets"`
}

// Email holds the notification transport settings.
type Email struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
}

// Login form selector fallbacks, used when the website settings leave the
// selectors empty.
const (
	FallbackUsernameSelector = `input[name="username"], input[type="email"]`
	FallbackPasswordSelector = `input[name="password"], input[type="password"]`
	FallbackSubmitSelector   = `button[type="submit"], input[type="submit"]`
)

// ResolveCredentials fills empty website credentials from the environment so
// secrets can stay out of the settings store.
func (w *Website) ResolveCredentials() {
	if w.Username == "" {
		w.Username = os.Getenv("MARKTWATCH_SITE_USERNAME")
	}
	if w.Password == "" {
		w.Password = os.Getenv("MARKTWATCH_SITE_PASSWORD")
	}
	if w.LoginURL == "" {
		w.LoginURL = os.Getenv("MARKTWATCH_SITE_LOGIN_URL")
	}
}

// Selectors returns the configured login form selectors with fallbacks applied.
func (w *Website) Selectors() (username, password, submit string) {
	username, password, submit = w.UsernameSelector, w.PasswordSelector, w.SubmitSelector
	if username == "" {
		username = FallbackUsernameSelector
	}
	if password == "" {
		password = FallbackPasswordSelector
	}
	if submit == "" {
		submit = FallbackSubmitSelector
	}
	return username, password, submit
}
