package instagram

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// Cookie is the Playwright-format cookie shape exchanged with the companion
// server and passed to POST /cookies.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// sessionState is the on-disk session format.
type sessionState struct {
	Username string   `json:"username"`
	Cookies  []Cookie `json:"cookies"`
}

// applyCookiesLocked sets named cookies onto the jar, defaulting domain and
// path the way browser exports leave them implicit. Callers must hold c.mu.
func (c *Client) applyCookiesLocked(cookies []Cookie) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}

	applied := 0
	var jarCookies []*http.Cookie
	for _, ck := range cookies {
		if ck.Name == "" || ck.Value == "" {
			continue
		}
		domain := ck.Domain
		if domain == "" {
			domain = ".instagram.com"
		}
		path := ck.Path
		if path == "" {
			path = "/"
		}
		jarCookies = append(jarCookies, &http.Cookie{
			Name:   ck.Name,
			Value:  ck.Value,
			Domain: domain,
			Path:   path,
		})
		applied++
	}

	if applied == 0 {
		return scrapeErr("apply cookies", ErrNoCookies)
	}

	c.http.Jar.SetCookies(u, jarCookies)
	return nil
}

// saveSessionLocked persists the current session cookies to the session
// file. Callers must hold c.mu.
func (c *Client) saveSessionLocked() error {
	if c.sessionFile == "" {
		return nil
	}

	state := sessionState{Username: c.loggedInAs}
	for _, ck := range c.cookiesFor(baseURL) {
		state.Cookies = append(state.Cookies, Cookie{
			Name:   ck.Name,
			Value:  ck.Value,
			Domain: ".instagram.com",
			Path:   "/",
		})
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(c.sessionFile, data, 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// loadSessionLocked restores a persisted session from the session file.
// A session that carries no sessionid cookie is treated as anonymous.
// Callers must hold c.mu.
func (c *Client) loadSessionLocked() error {
	if c.sessionFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.sessionFile) // #nosec G304 - path comes from config
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read session file: %w", err)
	}

	var state sessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse session file: %w", err)
	}

	if len(state.Cookies) > 0 {
		if err := c.applyCookiesLocked(state.Cookies); err != nil {
			return err
		}
	}
	if c.sessionCookie() != "" {
		c.loggedInAs = state.Username
	}
	return nil
}

// decodeJSON decodes a single JSON value from r.
func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
