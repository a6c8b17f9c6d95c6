package lms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxCoverSize = 16 << 20

// HTTPBase returns the base URL of the server's web interface.
func (c *Client) HTTPBase() string {
	return fmt.Sprintf("http://%s:%d", c.cfg.Host, c.cfg.HTTPPort)
}

// CoverURL returns the artwork URL of track. Remote artwork URLs are used as
// is, server-relative ones resolved against HTTPBase. Without artwork ids the
// cover of the player's current song is addressed.
func (c *Client) CoverURL(track TrackInfo) string {
	base := c.HTTPBase()

	if track.ArtworkURL != "" {
		u, err := url.Parse(track.ArtworkURL)
		if err == nil && u.IsAbs() {
			return track.ArtworkURL
		}
		b, _ := url.Parse(base + "/")
		if err == nil {
			return b.ResolveReference(u).String()
		}
	}

	switch {
	case track.ArtworkTrackID != "":
		return base + "/music/" + url.PathEscape(track.ArtworkTrackID) + "/cover.jpg"
	case track.CoverID != "":
		return base + "/music/" + url.PathEscape(track.CoverID) + "/cover.jpg"
	}

	return base + "/music/current/cover.jpg?player=" + c.escID
}

// FetchCover downloads the artwork of track and returns the image bytes and
// the content type reported by the server.
func (c *Client) FetchCover(ctx context.Context, track TrackInfo) ([]byte, string, error) {
	u := c.CoverURL(track)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to prepare cover request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, "", &TransportError{Op: "cover", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("cover request %s: %s", u, res.Status)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxCoverSize))
	if err != nil {
		return nil, "", &TransportError{Op: "cover", Err: err}
	}

	contentType := res.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	return data, contentType, nil
}
