// Package instagram implements a session-cookie-managing scraping client
// for Instagram posts. It resolves posts by shortcode, downloads rendered
// videos, and keeps one lazily-bootstrapped session for the process
// lifetime: a persisted session file is tried first, then a credential
// login, then a cookie set fetched from the companion server.
package instagram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/balkhaev/trender/internal/trace"
)

const (
	baseURL    = "https://www.instagram.com"
	apiBaseURL = "https://i.instagram.com"

	// appID is Instagram's public web application identifier, sent as
	// X-IG-App-ID on API calls.
	appID = "936619743392459"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client is the process-wide scraping client. Session bootstrap is lazy and
// mutex-guarded; the zero of everything else is set by NewClient.
type Client struct {
	http      *http.Client
	userAgent string

	sessionFile string
	serverURL   string
	username    string
	password    string

	logger *slog.Logger

	mu           sync.Mutex
	bootstrapped bool
	loggedInAs   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. A cookie jar is attached when
// the client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithUserAgent overrides the browser user agent used for all requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithCredentials sets the username/password used during lazy bootstrap.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a scraping client. sessionFile is where the session is
// persisted; serverURL is the companion server used as a cookie source.
func NewClient(sessionFile, serverURL string, opts ...Option) *Client {
	c := &Client{
		userAgent:   defaultUserAgent,
		sessionFile: sessionFile,
		serverURL:   strings.TrimRight(serverURL, "/"),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.http.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c.http.Jar = jar
	}

	return c
}

// EnsureSession runs the lazy session bootstrap exactly once: persisted
// session file, then credential login, then companion-server cookies.
// Bootstrap is best effort; the client stays usable anonymously when every
// step fails.
func (c *Client) EnsureSession(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bootstrapped {
		return
	}
	c.bootstrapped = true

	if c.username != "" {
		if err := c.loadSessionLocked(); err != nil {
			c.logger.Warn("failed to load session", slog.String("error", err.Error()))
		} else if c.loggedInAs != "" {
			c.logger.Info("loaded session", slog.String("username", c.loggedInAs))
		}
	}

	if c.username != "" && c.password != "" && c.loggedInAs == "" {
		if err := c.loginLocked(ctx, c.username, c.password); err != nil {
			c.logger.Warn("login failed", slog.String("error", err.Error()))
		} else {
			c.logger.Info("logged in", slog.String("username", c.username))
		}
	}

	if c.loggedInAs == "" {
		cookies, err := c.fetchServerCookies(ctx)
		if err != nil {
			c.logger.Warn("failed to fetch cookies from server", slog.String("error", err.Error()))
			return
		}
		if err := c.applyCookiesLocked(cookies); err != nil {
			c.logger.Warn("failed to apply server cookies", slog.String("error", err.Error()))
			return
		}
		c.logger.Info("applied cookies from server", slog.Int("count", len(cookies)))
	}
}

// Login authenticates with the given credentials and persists the session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bootstrapped = true
	return c.loginLocked(ctx, username, password)
}

// LoggedIn reports whether the client carries an authenticated session.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedInAs != "" || c.sessionCookie() != ""
}

// Username returns the authenticated username, or "" when anonymous.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedInAs
}

// loginLocked performs the web login flow: fetch the home page for a CSRF
// token, then post the browser-format encrypted password envelope.
// Callers must hold c.mu.
func (c *Client) loginLocked(ctx context.Context, username, password string) error {
	token, err := c.csrfToken(ctx)
	if err != nil {
		return scrapeErr("login", err)
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("enc_password", fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", time.Now().Unix(), password))
	form.Set("queryParams", "{}")
	form.Set("optIntoOneTap", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/api/v1/web/accounts/login/ajax/", strings.NewReader(form.Encode()))
	if err != nil {
		return scrapeErr("login", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-CSRFToken", token)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", baseURL+"/")

	resp, err := c.http.Do(req)
	if err != nil {
		return scrapeErr("login", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result struct {
		Authenticated bool   `json:"authenticated"`
		User          bool   `json:"user"`
		Checkpoint    string `json:"checkpoint_url"`
	}
	if err := decodeJSON(resp.Body, &result); err != nil {
		return scrapeErr("login", fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err))
	}

	if result.Checkpoint != "" {
		return scrapeErr("login", ErrCheckpointRequired)
	}
	if !result.Authenticated {
		return scrapeErr("login", ErrLoginFailed)
	}

	c.loggedInAs = username
	if err := c.saveSessionLocked(); err != nil {
		// The session works for this process even when persisting fails.
		c.logger.Warn("failed to save session", slog.String("error", err.Error()))
	}
	return nil
}

// csrfToken fetches the home page and returns the csrftoken cookie value.
func (c *Client) csrfToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	for _, ck := range c.cookiesFor(baseURL) {
		if ck.Name == "csrftoken" {
			return ck.Value, nil
		}
	}
	return "", fmt.Errorf("no csrftoken cookie after fetching %s", baseURL)
}

// sessionCookie returns the sessionid cookie value, or "".
func (c *Client) sessionCookie() string {
	for _, ck := range c.cookiesFor(baseURL) {
		if ck.Name == "sessionid" && ck.Value != "" {
			return ck.Value
		}
	}
	return ""
}

// cookiesFor returns the jar's cookies for the given URL.
func (c *Client) cookiesFor(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.http.Jar.Cookies(u)
}

// fetchServerCookies retrieves the cookie set stored by the companion
// server, propagating the request's trace context.
func (c *Client) fetchServerCookies(ctx context.Context) ([]Cookie, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.serverURL+"/api/reels/auth/cookies", nil)
	if err != nil {
		return nil, err
	}
	for k, v := range trace.Headers(ctx) {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cookie endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		Cookies []Cookie `json:"cookies"`
	}
	if err := decodeJSON(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("parse cookie response: %w", err)
	}

	return payload.Cookies, nil
}

// RefreshCookies fetches the cookie set from the companion server and
// applies it to the session. Returns the number of cookies applied.
func (c *Client) RefreshCookies(ctx context.Context) (int, error) {
	cookies, err := c.fetchServerCookies(ctx)
	if err != nil {
		return 0, scrapeErr("refresh cookies", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.bootstrapped = true
	if err := c.applyCookiesLocked(cookies); err != nil {
		return 0, err
	}
	return len(cookies), nil
}

// ApplyCookies maps a Playwright-format cookie set onto the session jar.
func (c *Client) ApplyCookies(cookies []Cookie) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bootstrapped = true
	return c.applyCookiesLocked(cookies)
}
