// internal/session/cookies.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name for keyring storage
	KeyringService = "marktwatch"
	// FallbackDir is the directory for file-based session storage (when keyring fails)
	FallbackDir = ".marktwatch/sessions"
	// sessionName is the single stored session; the service monitors one site.
	sessionName = "site"
)

// useFileBasedStorage checks if we should use file-based storage.
// This is a fallback for environments without a keyring daemon (containers, CI).
var fileBasedStorageCache *bool

func useFileBasedStorage() bool {
	if fileBasedStorageCache != nil {
		return *fileBasedStorageCache
	}

	if os.Getenv("CI") != "" {
		result := true
		fileBasedStorageCache = &result
		return true
	}

	testKey := "_test_keyring_access_"
	err := keyring.Set(KeyringService, testKey, "test")
	result := (err != nil)
	fileBasedStorageCache = &result

	if !result {
		_ = keyring.Delete(KeyringService, testKey)
	}

	return result
}

func sessionPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, FallbackDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".json"), nil
}

// SessionData represents a stored authentication session
type SessionData struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Cookies   []Cookie  `json:"cookies"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Cookie represents a browser cookie
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// SaveSession saves a session securely to the OS keyring or file
func SaveSession(session *SessionData) error {
	if session.Name == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	if useFileBasedStorage() {
		path, err := sessionPath(session.Name)
		if err != nil {
			return fmt.Errorf("failed to get session path: %w", err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return fmt.Errorf("failed to save session file: %w", err)
		}
		return nil
	}

	if err := keyring.Set(KeyringService, session.Name, string(data)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}

	return nil
}

// LoadSession loads a session from the OS keyring or file
func LoadSession(name string) (*SessionData, error) {
	if name == "" {
		return nil, fmt.Errorf("session name cannot be empty")
	}

	var data string

	if useFileBasedStorage() {
		path, err := sessionPath(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get session path: %w", err)
		}
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load session file: %w", err)
		}
		data = string(fileData)
	} else {
		var err error
		data, err = keyring.Get(KeyringService, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load from keyring: %w", err)
		}
	}

	var session SessionData
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}

	if !session.ExpiresAt.IsZero() && time.Now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("session expired")
	}

	return &session, nil
}

// DeleteSession removes a session from the OS keyring or file
func DeleteSession(name string) error {
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	if useFileBasedStorage() {
		path, err := sessionPath(name)
		if err != nil {
			return fmt.Errorf("failed to get session path: %w", err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete session file: %w", err)
		}
		return nil
	}

	if err := keyring.Delete(KeyringService, name); err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	return nil
}

// restoreSession injects previously persisted cookies into a fresh browser.
// Returns the original login time and true when cookies were restored,
// letting the manager skip a login while keeping timeout accounting honest.
func (m *Manager) restoreSession(browserCtx context.Context) (time.Time, bool) {
	session, err := LoadSession(sessionName)
	if err != nil {
		log.Debug().Err(err).Msg("No stored session to restore")
		return time.Time{}, false
	}

	restoreCtx, cancel := context.WithTimeout(browserCtx, 15*time.Second)
	defer cancel()

	err = chromedp.Run(restoreCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range session.Cookies {
				setter := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithHTTPOnly(c.HTTPOnly).
					WithSecure(c.Secure)
				if c.Expires > 0 {
					expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
					setter = setter.WithExpires(&expires)
				}
				if err := setter.Do(ctx); err != nil {
					return fmt.Errorf("set cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to restore session cookies")
		return time.Time{}, false
	}

	log.Info().Int("cookies", len(session.Cookies)).Time("created", session.CreatedAt).
		Msg("Restored persisted session")
	return session.CreatedAt, true
}
