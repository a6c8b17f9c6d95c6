// Package artwork caches cover images of the current playlist.
package artwork

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	color_extractor "github.com/marekm4/color-extractor"

	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
)

const defaultMaxEntries = 32

// Fetcher loads cover images, implemented by *lms.Client.
type Fetcher interface {
	CoverURL(track lms.TrackInfo) string
	FetchCover(ctx context.Context, track lms.TrackInfo) ([]byte, string, error)
}

// Cover is one cached image.
type Cover struct {
	Key         uint64    `json:"key"`
	URL         string    `json:"url"`
	Data        []byte    `json:"-"`
	ContentType string    `json:"contentType"`
	Colors      []string  `json:"colors"` // dominant colours as #rrggbb
	FetchedAt   time.Time `json:"fetchedAt"`
}

// Cache holds covers keyed by URL and track identity.
type Cache struct {
	fetcher Fetcher
	max     int
	log     *slog.Logger

	mu      sync.Mutex
	entries map[uint64]*Cover
	order   []uint64
	current uint64
}

// NewCache creates a cache holding up to max covers.
func NewCache(fetcher Fetcher, max int, logger *slog.Logger) *Cache {
	if max <= 0 {
		max = defaultMaxEntries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		fetcher: fetcher,
		max:     max,
		log:     logger.With(slog.String("component", "artwork")),
		entries: map[uint64]*Cover{},
	}
}

// Key identifies the cover of track. The URL alone is not enough: the
// "current" cover URL stays the same across songs.
func (c *Cache) Key(track lms.TrackInfo) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%s|%s|%s|%s",
		c.fetcher.CoverURL(track), track.ID, track.Album, track.Title))
}

// Get returns the cover of track, fetching it on a miss. A successful Get
// makes it the current cover.
func (c *Cache) Get(ctx context.Context, track lms.TrackInfo) (*Cover, error) {
	key := c.Key(track)

	c.mu.Lock()
	if cover, ok := c.entries[key]; ok {
		c.current = key
		c.mu.Unlock()
		return cover, nil
	}
	c.mu.Unlock()

	data, contentType, err := c.fetcher.FetchCover(ctx, track)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cover: %w", err)
	}

	// trust the bytes over the server header
	if detected := http.DetectContentType(data); detected != "application/octet-stream" {
		contentType = detected
	}

	cover := &Cover{
		Key:         key,
		URL:         c.fetcher.CoverURL(track),
		Data:        data,
		ContentType: contentType,
		Colors:      dominantColors(data),
		FetchedAt:   time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = cover
	c.current = key
	c.evict()

	c.log.Debug("Cached cover",
		slog.String("url", cover.URL),
		slog.String("content_type", contentType),
		slog.Int("bytes", len(data)))

	return cover, nil
}

// Current returns the cover of the last Get.
func (c *Cache) Current() (*Cover, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cover, ok := c.entries[c.current]
	return cover, ok
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[uint64]*Cover{}
	c.order = nil
	c.current = 0
}

// Len returns the number of cached covers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evict() {
	for len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		if oldest == c.current {
			c.order = append(c.order, oldest)
			continue
		}
		delete(c.entries, oldest)
	}
}

func dominantColors(data []byte) []string {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	var colours []string
	for _, col := range color_extractor.ExtractColors(img) {
		colours = append(colours, colorToHexString(col))
	}
	return colours
}

func colorToHexString(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%.2x%.2x%.2x", uint8(r>>8), uint8(g>>8), uint8(b>>8))
}
