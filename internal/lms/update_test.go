package lms

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusPlayerFields(t *testing.T) {
	log, _ := newRecorder()

	player, tracks := parseStatus("volume:37 mode:play playlist_cur_index:2 playlist_tracks:5", time.Now(), log)

	assert.Equal(t, 37, player.Volume)
	assert.Equal(t, "play", player.Mode)
	assert.Equal(t, 2, player.PlaylistIndex)
	assert.Equal(t, 5, player.PlaylistCount)
	assert.Empty(t, tracks)
}

func TestParseStatusTrackSegmentation(t *testing.T) {
	log, _ := newRecorder()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, tracks := parseStatus("playlist index:0 id:10 title:A playlist index:1 id:11 title:B", now, log)

	want := []TrackInfo{
		{Index: 0, ID: "10", Title: "A", UpdatedAt: now},
		{Index: 1, ID: "11", Title: "B", UpdatedAt: now},
	}
	if diff := cmp.Diff(want, tracks); diff != "" {
		t.Errorf("tracks mismatch (-want +got):\n%s", diff)
	}
}

func TestParseStatusDurationContext(t *testing.T) {
	log, _ := newRecorder()

	body := "mode%3Aplay duration%3A300.5 time%3A12 " +
		"playlist%20index%3A0 id%3A7 duration%3A180 artist%3AX " +
		"playlist%20index%3A1 id%3A8 duration%3A200"
	player, tracks := parseStatus(body, time.Now(), log)

	assert.Equal(t, 300.5, player.Duration)
	assert.Equal(t, 12.0, player.TrackTime)
	require.Len(t, tracks, 2)
	assert.Equal(t, 180.0, tracks[0].Duration)
	assert.Equal(t, "X", tracks[0].Artist)
	assert.Equal(t, 200.0, tracks[1].Duration)
}

func TestParseStatusUnknownTag(t *testing.T) {
	log, h := newRecorder()

	player, _ := parseStatus("strange:1 mode:stop", time.Now(), log)

	assert.Equal(t, "stop", player.Mode)
	assert.Equal(t, 1, h.count(slog.LevelInfo))
}

const testStatusBody = "player_name%3ALiving%20Room power%3A1 mode%3Aplay time%3A42.5 duration%3A240 " +
	"mixer%20volume%3A55 playlist%20repeat%3A0 playlist%20shuffle%3A1 " +
	"playlist_cur_index%3A1 playlist_tracks%3A2 " +
	"playlist%20index%3A0 id%3A10 title%3AFirst artist%3AAlpha album%3AOne genre%3ARock duration%3A200 year%3A1999 artwork_track_id%3Aabc " +
	"playlist%20index%3A1 id%3A11 title%3ASecond artist%3ABeta album%3ATwo genre%3APop duration%3A240 bitrate%3A320kb%2Fs type%3Aflc"

func newUpdateClient(t *testing.T) (*Client, *fakeServer, *fakeDialer) {
	t.Helper()

	srv := &fakeServer{tracks: 2, version: "8.3.1", muted: 0, status: testStatusBody}
	c, d := newTestClient(t, srv.respond)
	return c, srv, d
}

func TestUpdate(t *testing.T) {
	c, _, d := newUpdateClient(t)

	require.NoError(t, c.Update(context.Background(), false))

	player := c.PlayerState()
	assert.Equal(t, "Living Room", player.PlayerName)
	assert.Equal(t, "play", player.Mode)
	assert.Equal(t, "8.3.1", player.Version)
	assert.Equal(t, 55, player.Volume)
	assert.False(t, player.Muted)
	assert.Equal(t, 1, player.Shuffle)
	assert.Equal(t, 1, player.PlaylistIndex)
	assert.Equal(t, 2, player.PlaylistCount)
	assert.Equal(t, 2, player.TotalTracks)
	assert.Equal(t, 42.5, player.TrackTime)

	require.Equal(t, 2, c.TrackCount())
	assert.Equal(t, player.PlaylistCount, c.TrackCount())

	cur, ok := c.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "Second", cur.Title)
	assert.Equal(t, "320kb/s", cur.Bitrate)
	assert.Equal(t, "flc", cur.ContentType)

	first, ok := c.Track(0)
	require.True(t, ok)
	assert.Equal(t, 1999, first.Year)
	assert.Equal(t, "abc", first.ArtworkTrackID)

	_, ok = c.Track(2)
	assert.False(t, ok)

	assert.Equal(t, 1, d.channel(0).count("status 0 2 tags%3A"+trackTagSpec))
}

func TestUpdateIdempotent(t *testing.T) {
	c, _, _ := newUpdateClient(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, false))
	player, tracks := c.PlayerState(), c.Tracks()

	require.NoError(t, c.Update(ctx, false))

	ignoreStamps := cmpopts.IgnoreFields(TrackInfo{}, "UpdatedAt")
	if diff := cmp.Diff(tracks, c.Tracks(), ignoreStamps); diff != "" {
		t.Errorf("tracks changed (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(player, c.PlayerState(), cmpopts.IgnoreFields(PlayerState{}, "UpdatedAt")); diff != "" {
		t.Errorf("player state changed (-first +second):\n%s", diff)
	}
}

func TestUpdateStateOnlyPage(t *testing.T) {
	srv := &fakeServer{tracks: 500, version: "8", status: "mode%3Astop"}
	c, d := newTestClient(t, srv.respond)

	require.NoError(t, c.Update(context.Background(), true))
	assert.Equal(t, 1, d.channel(0).count("status 0 100 "))

	require.NoError(t, c.Update(context.Background(), false))
	assert.Equal(t, 1, d.channel(0).count("status 0 500 "))

	assert.Equal(t, 500, c.PlayerState().TotalTracks)
	assert.Zero(t, c.PlayerState().PlaylistCount)
}

func longPlaylist(n, current int) string {
	var sb strings.Builder
	sb.WriteString("mode%3Aplay playlist_cur_index%3A" + itoa(current))
	for i := 0; i < n; i++ {
		sb.WriteString(" playlist%20index%3A" + itoa(i) + " id%3A" + itoa(1000+i) + " title%3AT" + itoa(i))
	}
	return sb.String()
}

func TestUpdateStateOnlyKeepsCurrentTrack(t *testing.T) {
	srv := &fakeServer{tracks: 150, version: "8", status: longPlaylist(150, 120)}
	c, _ := newTestClient(t, srv.respond)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, false))
	cur, ok := c.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "T120", cur.Title)

	srv.mu.Lock()
	srv.status = longPlaylist(100, 120)
	srv.mu.Unlock()

	require.NoError(t, c.Update(ctx, true))
	assert.Equal(t, 150, c.TrackCount())
	assert.Equal(t, 150, c.PlayerState().PlaylistCount)

	cur, ok = c.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "T120", cur.Title)
}

func TestUpdateStateOnlyDropsTailWhenPlaylistChanged(t *testing.T) {
	srv := &fakeServer{tracks: 150, version: "8", status: longPlaylist(150, 120)}
	c, _ := newTestClient(t, srv.respond)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, false))

	srv.mu.Lock()
	srv.tracks = 140
	srv.status = longPlaylist(100, 5)
	srv.mu.Unlock()

	require.NoError(t, c.Update(ctx, true))
	assert.Equal(t, 100, c.TrackCount())
	assert.Equal(t, 140, c.PlayerState().TotalTracks)
}

func TestUpdateFailureKeepsState(t *testing.T) {
	c, srv, _ := newUpdateClient(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, false))
	before := c.Tracks()
	beforePlayer := c.PlayerState()

	// reconnect to a server answering "version ?" with a foreign echo
	failing := func(line string) []string {
		if strings.HasSuffix(line, " version ?") {
			return []string{testEscID + " mode play"}
		}
		return srv.respond(line)
	}
	c.dial = (&fakeDialer{respond: failing}).dial
	require.NoError(t, c.Open(ctx))

	err := c.Update(ctx, false)
	assert.ErrorIs(t, err, ErrUnexpectedAnswer)

	assert.Equal(t, before, c.Tracks())
	assert.Equal(t, beforePlayer, c.PlayerState())
}

func TestElapsed(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := PlayerState{Mode: "play", TrackTime: 10, Duration: 30, UpdatedAt: at}

	assert.Equal(t, 15.0, p.Elapsed(at.Add(5*time.Second)))
	assert.Equal(t, 30.0, p.Elapsed(at.Add(time.Minute)))

	p.Mode = "pause"
	assert.Equal(t, 10.0, p.Elapsed(at.Add(5*time.Second)))
}
