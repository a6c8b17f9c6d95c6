package lms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// trackTagSpec requests artist, coverid, duration, genre, coverart,
// artwork_track_id, artwork_url, album, remote_title, type, bitrate, lyrics,
// remote and year for every playlist entry.
const trackTagSpec = "acdgjJKlNorwxy"

// Update refreshes player state and track list in one locked sequence. With
// stateOnly at most 100 playlist entries are fetched and, while the playlist
// length is unchanged, entries past them are kept from the last refresh. On
// failure the previous state is kept untouched.
func (c *Client) Update(ctx context.Context, stateOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	total, err := c.queryInt(ctx, "playlist tracks")
	if err != nil {
		return fmt.Errorf("query playlist tracks: %w", err)
	}

	version, err := c.query(ctx, "version")
	if err != nil {
		return fmt.Errorf("query version: %w", err)
	}

	muted, err := c.queryInt(ctx, "mixer muting")
	if err != nil {
		return fmt.Errorf("query mixer muting: %w", err)
	}

	page := total
	if stateOnly && page > statePageSize {
		page = statePageSize
	}

	body, err := c.exchange(ctx, "status", []string{"0", itoa(page), Escape("tags:" + trackTagSpec)})
	if err != nil {
		return fmt.Errorf("query status: %w", err)
	}

	now := c.now()
	player, tracks := parseStatus(body, now, c.log)

	player.Version = version
	player.Muted = muted != 0
	player.TotalTracks = total
	player.UpdatedAt = now

	c.stateMu.Lock()
	// a short page keeps the entries beyond it while the playlist length is unchanged
	if stateOnly && len(tracks) == page && c.player.TotalTracks == total && len(c.tracks) > len(tracks) {
		tracks = append(tracks, c.tracks[len(tracks):]...)
	}
	player.PlaylistCount = len(tracks)
	c.player = player
	c.tracks = tracks
	c.stateMu.Unlock()

	c.log.Debug("Updated player state",
		slog.String("mode", player.Mode),
		slog.Int("tracks", len(tracks)),
		slog.Int("index", player.PlaylistIndex))

	return nil
}

// parseStatus decodes the body of a status response. Fields before the first
// "playlist index" describe the player; every "playlist index" opens a new
// track record.
func parseStatus(body string, now time.Time, log *slog.Logger) (PlayerState, []TrackInfo) {
	var (
		player PlayerState
		tracks []TrackInfo
		cur    *TrackInfo
	)

	flush := func() {
		if cur != nil {
			cur.UpdatedAt = now
			tracks = append(tracks, *cur)
			cur = nil
		}
	}

	dec := NewDecoder(ContextStatus)
	dec.Set(body)

	for {
		f, err := dec.Next()
		if errors.Is(err, ErrEndOfPacket) {
			break
		}
		if errors.Is(err, ErrUnknownTag) {
			log.Info("Ignoring unexpected tag", slog.String("tag", f.Name))
			continue
		}

		if f.Tag == TagPlaylistIndex {
			flush()
			cur = &TrackInfo{Index: atoi(f.Value)}
			dec.SetContext(ContextTrack)
			continue
		}

		if cur != nil && f.Tag.Namespace() == NamespaceTrack {
			cur.apply(f)
			continue
		}

		player.apply(f)
	}

	flush()

	return player, tracks
}
