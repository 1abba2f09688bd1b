package instagram

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// shortcodeAlphabet is the base64url-style alphabet Instagram uses for
// post shortcodes; the decoded value is the numeric media ID.
const shortcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// Post holds the metadata of a single post. Count fields are pointers
// because Instagram omits them on some post kinds.
type Post struct {
	Shortcode    string
	Caption      string
	LikeCount    *int64
	CommentCount *int64
	// ViewCount resolves as play count when present, else video view count.
	ViewCount    *int64
	Author       string
	ThumbnailURL string
	// Duration is the video duration in whole seconds.
	Duration *int64
	videoURL string
}

// MediaID decodes a shortcode into the numeric media ID used by the API.
func MediaID(shortcode string) (uint64, error) {
	if shortcode == "" || len(shortcode) > 11 {
		return 0, fmt.Errorf("%w: %q", ErrBadShortcode, shortcode)
	}

	var id uint64
	for _, ch := range shortcode {
		idx := strings.IndexRune(shortcodeAlphabet, ch)
		if idx < 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadShortcode, shortcode)
		}
		// 11-character shortcodes can exceed 64 bits.
		if id > (math.MaxUint64-uint64(idx))/64 {
			return 0, fmt.Errorf("%w: %q", ErrBadShortcode, shortcode)
		}
		id = id*64 + uint64(idx)
	}
	return id, nil
}

// mediaInfoResponse matches the media info API shape, reduced to the fields
// the service exposes.
type mediaInfoResponse struct {
	Items []struct {
		Caption *struct {
			Text string `json:"text"`
		} `json:"caption"`
		LikeCount     *int64   `json:"like_count"`
		CommentCount  *int64   `json:"comment_count"`
		PlayCount     *int64   `json:"play_count"`
		ViewCount     *int64   `json:"view_count"`
		VideoDuration *float64 `json:"video_duration"`
		User          struct {
			Username string `json:"username"`
		} `json:"user"`
		ImageVersions2 struct {
			Candidates []struct {
				URL string `json:"url"`
			} `json:"candidates"`
		} `json:"image_versions2"`
		VideoVersions []struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"video_versions"`
	} `json:"items"`
}

// PostMetadata resolves a post by shortcode. It uses the media info API
// when a session is available, falling back to scraping the public embed
// page for anonymous access.
func (c *Client) PostMetadata(ctx context.Context, shortcode string) (*Post, error) {
	c.EnsureSession(ctx)

	post, apiErr := c.postFromAPI(ctx, shortcode)
	if apiErr == nil {
		return post, nil
	}

	post, embedErr := c.postFromEmbed(ctx, shortcode)
	if embedErr == nil {
		return post, nil
	}

	return nil, scrapeErr("metadata", fmt.Errorf("api: %w; embed: %w", apiErr, embedErr))
}

// postFromAPI fetches a post via the media info API.
func (c *Client) postFromAPI(ctx context.Context, shortcode string) (*Post, error) {
	mediaID, err := MediaID(shortcode)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/media/%d/info/", apiBaseURL, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-IG-App-ID", appID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: media info returned status %d", ErrPostUnavailable, resp.StatusCode)
	}

	var info mediaInfoResponse
	if err := decodeJSON(resp.Body, &info); err != nil {
		return nil, fmt.Errorf("parse media info: %w", err)
	}
	if len(info.Items) == 0 {
		return nil, fmt.Errorf("%w: media info returned no items", ErrPostUnavailable)
	}

	item := info.Items[0]
	post := &Post{
		Shortcode:    shortcode,
		LikeCount:    item.LikeCount,
		CommentCount: item.CommentCount,
		Author:       item.User.Username,
	}
	if item.Caption != nil {
		post.Caption = item.Caption.Text
	}
	if item.PlayCount != nil {
		post.ViewCount = item.PlayCount
	} else {
		post.ViewCount = item.ViewCount
	}
	if len(item.ImageVersions2.Candidates) > 0 {
		post.ThumbnailURL = item.ImageVersions2.Candidates[0].URL
	}
	if item.VideoDuration != nil {
		secs := int64(*item.VideoDuration)
		post.Duration = &secs
	}
	if len(item.VideoVersions) > 0 {
		// Versions are ordered best first.
		post.videoURL = item.VideoVersions[0].URL
	}

	return post, nil
}

// DownloadVideo resolves the post, downloads its rendered video into dir
// and returns the path of the first video file found there.
func (c *Client) DownloadVideo(ctx context.Context, shortcode, dir string) (string, error) {
	post, err := c.PostMetadata(ctx, shortcode)
	if err != nil {
		return "", err
	}
	if post.videoURL == "" {
		return "", scrapeErr("download", ErrNoVideo)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, post.videoURL, nil)
	if err != nil {
		return "", scrapeErr("download", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", scrapeErr("download", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", scrapeErr("download", fmt.Errorf("video fetch returned status %d", resp.StatusCode))
	}

	path := filepath.Join(dir, shortcode+".mp4")
	f, err := os.Create(path) // #nosec G304 - dir is a request-scoped temp dir
	if err != nil {
		return "", scrapeErr("download", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return "", scrapeErr("download", err)
	}
	if err := f.Close(); err != nil {
		return "", scrapeErr("download", err)
	}

	return firstVideoFile(dir)
}

// firstVideoFile locates the first .mp4 under dir.
func firstVideoFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.mp4"))
	if err != nil {
		return "", scrapeErr("download", err)
	}
	if len(matches) == 0 {
		return "", scrapeErr("download", fmt.Errorf("no video file found after download"))
	}
	return matches[0], nil
}
