// Package media publishes the followed Squeezebox player on the desktop
// media session (MPRIS on Linux). Media keys and desktop widgets act on the
// remote player; nothing is played locally.
package media

import (
	"time"

	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
)

// PlaybackState is the player mode as the desktop sees it.
type PlaybackState int

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
)

// PlaybackStateOf maps the server's player mode onto a session state. A
// player we lost the connection to shows as stopped.
func PlaybackStateOf(connected bool, mode string) PlaybackState {
	if !connected {
		return StateStopped
	}
	switch mode {
	case "play":
		return StatePlaying
	case "pause":
		return StatePaused
	default:
		return StateStopped
	}
}

// Metadata describes the current playlist entry of the remote player.
type Metadata struct {
	TrackID  int // playlist index, part of the MPRIS track object path
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
	ArtURL   string // cover served by the media server
}

// MetadataOf builds the session metadata for track. Streams without a track
// duration fall back to the player's duration.
func MetadataOf(track lms.TrackInfo, playerDuration float64, artURL string) Metadata {
	duration := track.Duration
	if duration == 0 {
		duration = playerDuration
	}
	return Metadata{
		TrackID:  track.Index,
		Title:    track.DisplayTitle(),
		Artist:   track.Artist,
		Album:    track.Album,
		Duration: seconds(duration),
		ArtURL:   artURL,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// LoopStatus is the MPRIS name of a repeat mode.
type LoopStatus string

const (
	LoopNone     LoopStatus = "None"
	LoopTrack    LoopStatus = "Track"
	LoopPlaylist LoopStatus = "Playlist"
)

// playlist repeat values of the server, indexed by mode
var loopStatuses = [...]LoopStatus{LoopNone, LoopTrack, LoopPlaylist}

// LoopStatusOf maps the server's repeat mode (0 off, 1 song, 2 playlist).
func LoopStatusOf(repeat int) LoopStatus {
	if repeat < 0 || repeat >= len(loopStatuses) {
		return LoopNone
	}
	return loopStatuses[repeat]
}

func repeatOf(status LoopStatus) int {
	for mode, s := range loopStatuses {
		if s == status {
			return mode
		}
	}
	return 0
}

// Session is a desktop media session showing one remote player.
type Session interface {
	UpdateMetadata(metadata Metadata) error
	UpdatePlaybackState(state PlaybackState, position time.Duration) error
	UpdateShuffle(enabled bool) error
	UpdateLoopStatus(status LoopStatus) error

	// UpdateVolume takes the mixer volume scaled to 0..1.
	UpdateVolume(volume float64) error

	// SetCommandHandler registers who receives media key presses.
	SetCommandHandler(handler CommandHandler)

	Close() error
}

// Command is a request the desktop sends to the player.
type Command int

const (
	CmdPlay Command = iota
	CmdPause
	CmdPlayPause
	CmdStop
	CmdNext
	CmdPrevious
	CmdSeek
	CmdSetShuffle
	CmdSetLoopStatus
	CmdSetVolume
)

var commandNames = [...]string{
	CmdPlay:          "Play",
	CmdPause:         "Pause",
	CmdPlayPause:     "PlayPause",
	CmdStop:          "Stop",
	CmdNext:          "Next",
	CmdPrevious:      "Previous",
	CmdSeek:          "Seek",
	CmdSetShuffle:    "SetShuffle",
	CmdSetLoopStatus: "SetLoopStatus",
	CmdSetVolume:     "SetVolume",
}

func (c Command) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return "Unknown"
	}
	return commandNames[c]
}

// CommandHandler receives desktop commands. data carries the argument:
// time.Duration for CmdSeek, bool for CmdSetShuffle, LoopStatus for
// CmdSetLoopStatus and float64 for CmdSetVolume.
type CommandHandler interface {
	OnCommand(cmd Command, data interface{}) error
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(cmd Command, data interface{}) error

func (f CommandHandlerFunc) OnCommand(cmd Command, data interface{}) error {
	return f(cmd, data)
}

// NoOpSession stands in where no desktop session bus is available.
type NoOpSession struct{}

func NewNoOpSession() *NoOpSession {
	return &NoOpSession{}
}

func (s *NoOpSession) UpdateMetadata(Metadata) error                          { return nil }
func (s *NoOpSession) UpdatePlaybackState(PlaybackState, time.Duration) error { return nil }
func (s *NoOpSession) UpdateShuffle(bool) error                               { return nil }
func (s *NoOpSession) UpdateLoopStatus(LoopStatus) error                      { return nil }
func (s *NoOpSession) UpdateVolume(float64) error                             { return nil }
func (s *NoOpSession) SetCommandHandler(CommandHandler)                       {}
func (s *NoOpSession) Close() error                                           { return nil }
