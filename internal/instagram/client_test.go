package instagram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkhaev/trender/internal/trace"
)

// rewriteTransport sends every request to the test server regardless of the
// requested host, so the client's hardcoded Instagram URLs can be served by
// httptest fixtures.
type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

// newTestClient builds a client whose traffic lands on the given test server.
func newTestClient(t *testing.T, ts *httptest.Server, opts ...Option) *Client {
	t.Helper()

	target, err := url.Parse(ts.URL)
	require.NoError(t, err)

	hc := &http.Client{Transport: &rewriteTransport{target: target}}
	opts = append([]Option{WithHTTPClient(hc)}, opts...)
	sessionFile := filepath.Join(t.TempDir(), "session")
	return NewClient(sessionFile, ts.URL, opts...)
}

func TestMediaID(t *testing.T) {
	tests := []struct {
		shortcode string
		want      uint64
		wantErr   bool
	}{
		{"A", 0, false},
		{"B", 1, false},
		{"BB", 65, false},
		{"_", 63, false},
		{"CFoUY", 2*64*64*64*64 + 5*64*64*64 + 40*64*64 + 20*64 + 24, false},
		{"", 0, true},
		{"waytoolongcode", 0, true},
		{"bad!code", 0, true},
		{"Q__________", 0, true},
		{"___________", 0, true},
	}
	for _, tt := range tests {
		got, err := MediaID(tt.shortcode)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrBadShortcode, "shortcode %q", tt.shortcode)
			continue
		}
		require.NoError(t, err, "shortcode %q", tt.shortcode)
		assert.Equal(t, tt.want, got, "shortcode %q", tt.shortcode)
	}
}

func TestApplyCookies(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	t.Run("sessionid cookie marks client logged in", func(t *testing.T) {
		c := newTestClient(t, ts)
		require.False(t, c.LoggedIn())

		err := c.ApplyCookies([]Cookie{
			{Name: "sessionid", Value: "abc123"},
			{Name: "csrftoken", Value: "tok"},
		})
		require.NoError(t, err)
		assert.True(t, c.LoggedIn())
	})

	t.Run("empty set is rejected", func(t *testing.T) {
		c := newTestClient(t, ts)
		err := c.ApplyCookies(nil)
		assert.ErrorIs(t, err, ErrNoCookies)
	})

	t.Run("nameless cookies are skipped", func(t *testing.T) {
		c := newTestClient(t, ts)
		err := c.ApplyCookies([]Cookie{{Name: "", Value: "x"}, {Name: "y", Value: ""}})
		assert.ErrorIs(t, err, ErrNoCookies)
	})
}

func TestSessionRoundtrip(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	sessionFile := filepath.Join(t.TempDir(), "session")

	target, err := url.Parse(ts.URL)
	require.NoError(t, err)

	first := NewClient(sessionFile, ts.URL,
		WithHTTPClient(&http.Client{Transport: &rewriteTransport{target: target}}))
	require.NoError(t, first.ApplyCookies([]Cookie{{Name: "sessionid", Value: "s3ss"}}))
	first.mu.Lock()
	first.loggedInAs = "alice"
	require.NoError(t, first.saveSessionLocked())
	first.mu.Unlock()

	data, err := os.ReadFile(sessionFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sessionid")

	second := NewClient(sessionFile, ts.URL,
		WithHTTPClient(&http.Client{Transport: &rewriteTransport{target: target}}))
	second.mu.Lock()
	require.NoError(t, second.loadSessionLocked())
	second.mu.Unlock()

	assert.True(t, second.LoggedIn())
	assert.Equal(t, "alice", second.Username())
}

func TestLoadSessionMissingFile(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	c := newTestClient(t, ts)
	c.mu.Lock()
	err := c.loadSessionLocked()
	c.mu.Unlock()
	require.NoError(t, err)
	assert.False(t, c.LoggedIn())
}

func TestRefreshCookies(t *testing.T) {
	t.Run("applies fetched cookies", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/reels/auth/cookies", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"cookies": []Cookie{
					{Name: "sessionid", Value: "remote", Domain: ".instagram.com", Path: "/"},
					{Name: "csrftoken", Value: "tok"},
				},
			})
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		c := newTestClient(t, ts)
		count, err := c.RefreshCookies(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.True(t, c.LoggedIn())
	})

	t.Run("propagates trace headers", func(t *testing.T) {
		var gotTrace string
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/reels/auth/cookies", func(w http.ResponseWriter, r *http.Request) {
			gotTrace = r.Header.Get(trace.TraceHeader)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"cookies": []Cookie{{Name: "csrftoken", Value: "tok"}},
			})
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		c := newTestClient(t, ts)
		ctx := trace.NewContext(context.Background(), "trace-1", "span-1")
		_, err := c.RefreshCookies(ctx)
		require.NoError(t, err)
		assert.Equal(t, "trace-1", gotTrace)
	})

	t.Run("server error surfaces", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		_, err := c.RefreshCookies(context.Background())
		assert.Error(t, err)
	})
}

func TestLogin(t *testing.T) {
	t.Run("successful login persists session", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf-1"})
		})
		mux.HandleFunc("POST /api/v1/web/accounts/login/ajax/", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "csrf-1", r.Header.Get("X-CSRFToken"))
			assert.Equal(t, "alice", r.PostFormValue("username"))
			assert.Contains(t, r.PostFormValue("enc_password"), "#PWD_INSTAGRAM_BROWSER:0:")
			assert.Contains(t, r.PostFormValue("enc_password"), ":secret")

			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "s3ss"})
			_ = json.NewEncoder(w).Encode(map[string]any{"authenticated": true})
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		c := newTestClient(t, ts)
		require.NoError(t, c.Login(context.Background(), "alice", "secret"))
		assert.True(t, c.LoggedIn())
		assert.Equal(t, "alice", c.Username())

		_, err := os.Stat(c.sessionFile)
		assert.NoError(t, err)
	})

	t.Run("rejected credentials", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf-1"})
		})
		mux.HandleFunc("POST /api/v1/web/accounts/login/ajax/", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"authenticated": false})
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		c := newTestClient(t, ts)
		err := c.Login(context.Background(), "alice", "wrong")
		assert.ErrorIs(t, err, ErrLoginFailed)
		assert.Empty(t, c.Username())
	})

	t.Run("checkpoint challenge", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf-1"})
		})
		mux.HandleFunc("POST /api/v1/web/accounts/login/ajax/", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"checkpoint_url": "/challenge/"})
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		c := newTestClient(t, ts)
		err := c.Login(context.Background(), "alice", "secret")
		assert.ErrorIs(t, err, ErrCheckpointRequired)
	})
}

func TestPostMetadata(t *testing.T) {
	like, comments := int64(10), int64(3)
	play, views := int64(500), int64(200)
	dur := 12.8

	t.Run("api path prefers play count", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v1/media/", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, appID, r.Header.Get("X-IG-App-ID"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{
					"caption":        map[string]any{"text": "hello"},
					"like_count":     like,
					"comment_count":  comments,
					"play_count":     play,
					"view_count":     views,
					"video_duration": dur,
					"user":           map[string]any{"username": "alice"},
					"image_versions2": map[string]any{
						"candidates": []map[string]any{{"url": "https://cdn/thumb.jpg"}},
					},
					"video_versions": []map[string]any{{"url": "https://cdn/video.mp4"}},
				}},
			})
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		c := newTestClient(t, ts)
		post, err := c.PostMetadata(context.Background(), "DQ8gR5ukegX")
		require.NoError(t, err)

		assert.Equal(t, "hello", post.Caption)
		assert.Equal(t, "alice", post.Author)
		require.NotNil(t, post.ViewCount)
		assert.Equal(t, play, *post.ViewCount)
		require.NotNil(t, post.Duration)
		assert.Equal(t, int64(12), *post.Duration)
		assert.Equal(t, "https://cdn/thumb.jpg", post.ThumbnailURL)
	})

	t.Run("falls back to view count", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v1/media/", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{
					"view_count": views,
					"user":       map[string]any{"username": "alice"},
				}},
			})
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		c := newTestClient(t, ts)
		post, err := c.PostMetadata(context.Background(), "DQ8gR5ukegX")
		require.NoError(t, err)
		require.NotNil(t, post.ViewCount)
		assert.Equal(t, views, *post.ViewCount)
	})

	t.Run("embed fallback when api denies access", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v1/media/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
		mux.HandleFunc("GET /p/{shortcode}/embed/captioned/", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html><body>
				<span class="UsernameText">alice</span>
				<img class="EmbeddedMediaImage" src="https://cdn/thumb.jpg"/>
				<div class="Caption">alice a sunny day View all comments</div>
			</body></html>`))
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		c := newTestClient(t, ts)
		post, err := c.PostMetadata(context.Background(), "DQ8gR5ukegX")
		require.NoError(t, err)
		assert.Equal(t, "alice", post.Author)
		assert.Equal(t, "https://cdn/thumb.jpg", post.ThumbnailURL)
		assert.Equal(t, "a sunny day", post.Caption)
		assert.Nil(t, post.LikeCount)
	})

	t.Run("both paths failing reports both errors", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer ts.Close()

		c := newTestClient(t, ts)
		_, err := c.PostMetadata(context.Background(), "DQ8gR5ukegX")
		assert.ErrorIs(t, err, ErrPostUnavailable)
	})
}

func TestDownloadVideo(t *testing.T) {
	videoBytes := []byte("not really mp4 but good enough")

	t.Run("downloads into the given directory", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v1/media/", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{
					"user":           map[string]any{"username": "alice"},
					"video_versions": []map[string]any{{"url": "https://cdn/video.mp4"}},
				}},
			})
		})
		mux.HandleFunc("GET /video.mp4", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(videoBytes)
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		c := newTestClient(t, ts)
		dir := t.TempDir()
		path, err := c.DownloadVideo(context.Background(), "DQ8gR5ukegX", dir)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(dir, "DQ8gR5ukegX.mp4"), path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, videoBytes, data)
	})

	t.Run("post without video", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v1/media/", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{
					"user": map[string]any{"username": "alice"},
				}},
			})
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		c := newTestClient(t, ts)
		_, err := c.DownloadVideo(context.Background(), "DQ8gR5ukegX", t.TempDir())
		assert.ErrorIs(t, err, ErrNoVideo)
	})
}

func TestEnsureSessionFallsBackToServerCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/reels/auth/cookies", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"cookies": []Cookie{{Name: "sessionid", Value: "remote"}},
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newTestClient(t, ts)
	c.EnsureSession(context.Background())
	assert.True(t, c.LoggedIn())

	// Bootstrap runs once; a second call is a no-op.
	c.EnsureSession(context.Background())
	assert.True(t, c.LoggedIn())
}
