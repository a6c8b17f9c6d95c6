package lms

import (
	"strconv"
	"strings"
	"time"
)

// PlayerState mirrors the status of the player.
type PlayerState struct {
	PlayerName    string    `json:"playerName"`
	Mode          string    `json:"mode"`
	Version       string    `json:"version"`
	Power         bool      `json:"power"`
	Volume        int       `json:"volume"`
	Muted         bool      `json:"muted"`
	TrackTime     float64   `json:"trackTime"` // elapsed seconds of the current track
	Duration      float64   `json:"duration"`
	Remote        bool      `json:"remote"`
	CurrentTitle  string    `json:"currentTitle,omitempty"`
	PlaylistName  string    `json:"playlistName,omitempty"`
	PlaylistIndex int       `json:"playlistIndex"`
	PlaylistCount int       `json:"playlistCount"` // tracks held in the local list
	TotalTracks   int       `json:"totalTracks"`   // tracks in the player's playlist
	Shuffle       int       `json:"shuffle"`
	Repeat        int       `json:"repeat"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Elapsed extrapolates the play position at now while playing.
func (p PlayerState) Elapsed(now time.Time) float64 {
	if p.Mode != "play" || p.UpdatedAt.IsZero() {
		return p.TrackTime
	}

	elapsed := p.TrackTime + now.Sub(p.UpdatedAt).Seconds()
	if p.Duration > 0 && elapsed > p.Duration {
		return p.Duration
	}
	return elapsed
}

// TrackInfo is one entry of the current playlist.
type TrackInfo struct {
	Index          int       `json:"index"`
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Artist         string    `json:"artist"`
	Album          string    `json:"album"`
	Genre          string    `json:"genre"`
	Year           int       `json:"year,omitempty"`
	Duration       float64   `json:"duration"`
	Bitrate        string    `json:"bitrate,omitempty"`
	ContentType    string    `json:"contentType,omitempty"`
	Remote         bool      `json:"remote"`
	RemoteTitle    string    `json:"remoteTitle,omitempty"`
	CoverID        string    `json:"coverId,omitempty"`
	CoverArt       bool      `json:"coverArt"`
	ArtworkTrackID string    `json:"artworkTrackId,omitempty"`
	ArtworkURL     string    `json:"artworkUrl,omitempty"`
	URL            string    `json:"url,omitempty"`
	Lyrics         string    `json:"lyrics,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// DisplayTitle returns the title, or the stream title for remote streams.
func (t TrackInfo) DisplayTitle() string {
	if t.Title == "" && t.RemoteTitle != "" {
		return t.RemoteTitle
	}
	return t.Title
}

func (p *PlayerState) apply(f Field) {
	switch f.Tag {
	case TagPlayerName:
		p.PlayerName = f.Value
	case TagPower:
		p.Power = atob(f.Value)
	case TagMode:
		p.Mode = f.Value
	case TagTime:
		p.TrackTime = atof(f.Value)
	case TagDuration:
		p.Duration = atof(f.Value)
	case TagRemote:
		p.Remote = atob(f.Value)
	case TagCurrentTitle:
		p.CurrentTitle = f.Value
	case TagMixerVolume:
		p.Volume = atoi(f.Value)
	case TagPlaylistRepeat:
		p.Repeat = atoi(f.Value)
	case TagPlaylistShuffle:
		p.Shuffle = atoi(f.Value)
	case TagPlaylistName:
		p.PlaylistName = f.Value
	case TagPlaylistCurIndex:
		p.PlaylistIndex = atoi(f.Value)
	case TagPlaylistTracks:
		p.PlaylistCount = atoi(f.Value)
		p.TotalTracks = p.PlaylistCount
	}
}

func (t *TrackInfo) apply(f Field) {
	switch f.Tag {
	case TagTrackID:
		t.ID = f.Value
	case TagTrackTitle:
		t.Title = f.Value
	case TagTrackArtist:
		t.Artist = f.Value
	case TagTrackAlbum:
		t.Album = f.Value
	case TagTrackGenre:
		t.Genre = f.Value
	case TagTrackYear:
		t.Year = atoi(f.Value)
	case TagTrackDuration:
		t.Duration = atof(f.Value)
	case TagTrackBitrate:
		t.Bitrate = f.Value
	case TagTrackContentType:
		t.ContentType = f.Value
	case TagTrackRemote:
		t.Remote = atob(f.Value)
	case TagTrackRemoteTitle:
		t.RemoteTitle = f.Value
	case TagTrackCoverID:
		t.CoverID = f.Value
	case TagTrackCoverArt:
		t.CoverArt = atob(f.Value)
	case TagTrackArtworkTrackID:
		t.ArtworkTrackID = f.Value
	case TagTrackArtworkURL:
		t.ArtworkURL = f.Value
	case TagTrackURL:
		t.URL = f.Value
	case TagTrackLyrics:
		t.Lyrics = f.Value
	}
}

// atoi parses the leading integer of s, ignoring trailing garbage like
// "12.5" or "320kb/s". Unparsable input yields 0.
func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return float64(atoi(s))
	}
	return f
}

func atob(s string) bool {
	return atoi(s) != 0
}
