package config

import "testing"

func TestResolveCredentials_EnvFallback(t *testing.T) {
	t.Setenv("MARKTWATCH_SITE_USERNAME", "env-user")
	t.Setenv("MARKTWATCH_SITE_PASSWORD", "env-pass")
	t.Setenv("MARKTWATCH_SITE_LOGIN_URL", "https://site.example/env-login")

	w := Website{}
	w.ResolveCredentials()
	if w.Username != "env-user" || w.Password != "env-pass" {
		t.Errorf("credentials not filled from env: %+v", w)
	}
	if w.LoginURL != "https://site.example/env-login" {
		t.Errorf("LoginURL = %q", w.LoginURL)
	}
}

func TestResolveCredentials_StoredValuesWin(t *testing.T) {
	t.Setenv("MARKTWATCH_SITE_USERNAME", "env-user")

	w := Website{Username: "stored-user"}
	w.ResolveCredentials()
	if w.Username != "stored-user" {
		t.Errorf("Username = %q, stored value must win over env", w.Username)
	}
}

func TestSelectors_Fallbacks(t *testing.T) {
	w := Website{}
	u, p, s := w.Selectors()
	if u != FallbackUsernameSelector || p != FallbackPasswordSelector || s != FallbackSubmitSelector {
		t.Errorf("empty selectors did not fall back: %q %q %q", u, p, s)
	}

	w = Website{UsernameSelector: "#user", PasswordSelector: "#pass", SubmitSelector: "#go"}
	u, p, s = w.Selectors()
	if u != "#user" || p != "#pass" || s != "#go" {
		t.Errorf("configured selectors not honored: %q %q %q", u, p, s)
	}
}
