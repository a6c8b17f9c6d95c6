package artwork

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	data  []byte
	err   error
}

func (f *fakeFetcher) CoverURL(track lms.TrackInfo) string {
	return "http://lms:9000/music/current/cover.jpg?player=x"
}

func (f *fakeFetcher) FetchCover(ctx context.Context, track lms.TrackInfo) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.data, "image/jpeg", f.err
}

func redPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCacheGet(t *testing.T) {
	f := &fakeFetcher{data: redPNG(t)}
	c := NewCache(f, 4, nil)
	track := lms.TrackInfo{ID: "1", Title: "A"}

	cover, err := c.Get(context.Background(), track)
	require.NoError(t, err)
	assert.Equal(t, "image/png", cover.ContentType)
	assert.NotEmpty(t, cover.Colors)
	assert.Equal(t, c.Key(track), cover.Key)

	again, err := c.Get(context.Background(), track)
	require.NoError(t, err)
	assert.Same(t, cover, again)
	assert.Equal(t, 1, f.calls)

	cur, ok := c.Current()
	require.True(t, ok)
	assert.Same(t, cover, cur)
}

func TestCacheKeyPerTrack(t *testing.T) {
	c := NewCache(&fakeFetcher{}, 4, nil)

	a := c.Key(lms.TrackInfo{ID: "1", Title: "A"})
	b := c.Key(lms.TrackInfo{ID: "2", Title: "B"})
	assert.NotEqual(t, a, b, "same URL, different songs")
}

func TestCacheUndecodableImage(t *testing.T) {
	f := &fakeFetcher{data: []byte("not an image")}
	c := NewCache(f, 4, nil)

	cover, err := c.Get(context.Background(), lms.TrackInfo{ID: "1"})
	require.NoError(t, err)
	assert.Empty(t, cover.Colors)
	assert.Equal(t, "text/plain; charset=utf-8", cover.ContentType)
}

func TestCacheFetchError(t *testing.T) {
	f := &fakeFetcher{err: errors.New("404")}
	c := NewCache(f, 4, nil)

	_, err := c.Get(context.Background(), lms.TrackInfo{ID: "1"})
	assert.Error(t, err)
	assert.Zero(t, c.Len())
}

func TestCacheInvalidateAndEvict(t *testing.T) {
	f := &fakeFetcher{data: redPNG(t)}
	c := NewCache(f, 2, nil)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		_, err := c.Get(ctx, lms.TrackInfo{ID: id})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, c.Key(lms.TrackInfo{ID: "3"}), cur.Key)

	c.Invalidate()
	assert.Zero(t, c.Len())
	_, ok = c.Current()
	assert.False(t, ok)
}
