package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
)

func TestMetadataOf(t *testing.T) {
	track := lms.TrackInfo{Index: 4, Title: "Song", Artist: "Band", Album: "LP", Duration: 181.5}

	md := MetadataOf(track, 0, "http://lms:9000/music/current/cover.jpg")
	assert.Equal(t, Metadata{
		TrackID:  4,
		Title:    "Song",
		Artist:   "Band",
		Album:    "LP",
		Duration: 181500 * time.Millisecond,
		ArtURL:   "http://lms:9000/music/current/cover.jpg",
	}, md)
}

func TestMetadataOf_StreamDuration(t *testing.T) {
	track := lms.TrackInfo{Index: 0, Remote: true, RemoteTitle: "Live"}

	md := MetadataOf(track, 60, "")
	assert.Equal(t, time.Minute, md.Duration)
}

func TestLoopStatus(t *testing.T) {
	tests := []struct {
		repeat int
		want   LoopStatus
	}{
		{0, LoopNone},
		{1, LoopTrack},
		{2, LoopPlaylist},
		{7, LoopNone},
		{-1, LoopNone},
	}

	for _, tt := range tests {
		got := LoopStatusOf(tt.repeat)
		if got != tt.want {
			t.Errorf("LoopStatusOf(%d) = %s, want %s", tt.repeat, got, tt.want)
		}
	}

	for mode := 0; mode < 3; mode++ {
		if got := repeatOf(LoopStatusOf(mode)); got != mode {
			t.Errorf("repeatOf(LoopStatusOf(%d)) = %d", mode, got)
		}
	}
	assert.Equal(t, 0, repeatOf("Bogus"))
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "PlayPause", CmdPlayPause.String())
	assert.Equal(t, "SetVolume", CmdSetVolume.String())
	assert.Equal(t, "Unknown", Command(99).String())
}
