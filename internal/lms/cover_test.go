package lms

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoverURL(t *testing.T) {
	c := NewClient(Config{Host: "lms.local", HTTPPort: 9000, PlayerID: testPlayerID})

	tests := []struct {
		name  string
		track TrackInfo
		want  string
	}{
		{"current", TrackInfo{}, "http://lms.local:9000/music/current/cover.jpg?player=" + testEscID},
		{"artwork track id", TrackInfo{ArtworkTrackID: "4f2a", CoverID: "x"}, "http://lms.local:9000/music/4f2a/cover.jpg"},
		{"cover id", TrackInfo{CoverID: "77"}, "http://lms.local:9000/music/77/cover.jpg"},
		{"relative url", TrackInfo{ArtworkURL: "/imageproxy/abc/image.png"}, "http://lms.local:9000/imageproxy/abc/image.png"},
		{"absolute url", TrackInfo{ArtworkURL: "https://cdn.example.com/a.jpg"}, "https://cdn.example.com/a.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.CoverURL(tt.track))
		})
	}
}

func TestFetchCover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/music/current/cover.jpg" || r.URL.Query().Get("player") != testPlayerID {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		w.Write([]byte("jpegdata"))
	}))
	defer srv.Close()

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	httpPort, _ := strconv.Atoi(port)

	c := NewClient(Config{Host: host, HTTPPort: httpPort, PlayerID: testPlayerID})

	data, contentType, err := c.FetchCover(context.Background(), TrackInfo{})
	require.NoError(t, err)
	assert.Equal(t, []byte("jpegdata"), data)
	assert.Equal(t, "image/jpeg", contentType)

	_, _, err = c.FetchCover(context.Background(), TrackInfo{CoverID: "missing"})
	assert.Error(t, err)
}
