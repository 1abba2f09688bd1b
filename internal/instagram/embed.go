package instagram

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// postFromEmbed scrapes the public embed page. It is the anonymous-access
// fallback: no counts and no video URL, but caption, author and thumbnail
// survive.
func (c *Client) postFromEmbed(ctx context.Context, shortcode string) (*Post, error) {
	url := fmt.Sprintf("%s/p/%s/embed/captioned/", baseURL, shortcode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: embed page returned status %d", ErrPostUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse embed page: %w", err)
	}

	post := &Post{Shortcode: shortcode}

	post.Author = strings.TrimSpace(doc.Find(".UsernameText").First().Text())

	if img := doc.Find("img.EmbeddedMediaImage").First(); img.Length() > 0 {
		post.ThumbnailURL, _ = img.Attr("src")
	}

	// The caption block repeats the username link; strip it off the text.
	if capt := doc.Find(".Caption").First(); capt.Length() > 0 {
		text := strings.TrimSpace(capt.Text())
		text = strings.TrimPrefix(text, post.Author)
		post.Caption = strings.TrimSpace(strings.TrimSuffix(text, "View all comments"))
	}

	if post.Author == "" && post.ThumbnailURL == "" {
		return nil, fmt.Errorf("%w: embed page carried no recognizable post", ErrPostUnavailable)
	}

	return post, nil
}
