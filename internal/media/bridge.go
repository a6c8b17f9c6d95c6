package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
	"github.com/horchi/vdr-plugin-squeezebox/internal/loop"
)

// ErrBusy is returned when a command could not be queued.
var ErrBusy = errors.New("media: command queue full")

// Controller is the part of the protocol client media keys drive.
type Controller interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	PausePlay(ctx context.Context) error
	Stop(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PrevTrack(ctx context.Context) error
	Seek(ctx context.Context, seconds int) error
	SetShuffle(ctx context.Context, mode int) error
	SetRepeat(ctx context.Context, mode int) error
	SetVolume(ctx context.Context, volume int) error
	CoverURL(track lms.TrackInfo) string
}

// Dispatcher runs commands on the loop goroutine.
type Dispatcher interface {
	Input(action func(context.Context) error) bool
}

type published struct {
	metadata Metadata
	state    PlaybackState
	shuffle  bool
	loop     LoopStatus
	volume   int
}

// Bridge mirrors loop snapshots on a Session and turns session commands into
// player commands. It is a loop.Renderer and a CommandHandler.
type Bridge struct {
	session Session
	ctrl    Controller
	input   Dispatcher
	log     *slog.Logger

	mu    sync.Mutex
	last  *published
	state PlaybackState
}

// NewBridge connects session to ctrl.
func NewBridge(session Session, ctrl Controller, input Dispatcher, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		session: session,
		ctrl:    ctrl,
		input:   input,
		log:     logger.With(slog.String("component", "media")),
	}
	session.SetCommandHandler(b)
	return b
}

// Render publishes what changed since the last snapshot.
func (b *Bridge) Render(snap loop.Snapshot) {
	next := published{
		state:   PlaybackStateOf(snap.Connected, snap.Player.Mode),
		shuffle: snap.Player.Shuffle != 0,
		loop:    LoopStatusOf(snap.Player.Repeat),
		volume:  snap.Player.Volume,
	}
	if cur := snap.Current; cur != nil {
		next.metadata = MetadataOf(*cur, snap.Player.Duration, b.ctrl.CoverURL(*cur))
	}

	b.mu.Lock()
	prev := b.last
	b.last = &next
	b.state = next.state
	b.mu.Unlock()

	var errs []error
	first := prev == nil
	if first || prev.metadata != next.metadata || snap.MetadataChanged {
		errs = append(errs, b.session.UpdateMetadata(next.metadata))
	}
	if first || prev.state != next.state || prev.metadata.TrackID != next.metadata.TrackID {
		errs = append(errs, b.session.UpdatePlaybackState(next.state, seconds(snap.Elapsed)))
	}
	if first || prev.shuffle != next.shuffle {
		errs = append(errs, b.session.UpdateShuffle(next.shuffle))
	}
	if first || prev.loop != next.loop {
		errs = append(errs, b.session.UpdateLoopStatus(next.loop))
	}
	if first || prev.volume != next.volume {
		errs = append(errs, b.session.UpdateVolume(float64(next.volume)/100))
	}

	if err := errors.Join(errs...); err != nil {
		b.log.Warn("Failed to update media session", slog.String("stack", err.Error()))
	}
}

// OnCommand queues the player command for cmd.
func (b *Bridge) OnCommand(cmd Command, data interface{}) error {
	action, err := b.action(cmd, data)
	if err != nil {
		return err
	}

	b.log.Debug("Media command", slog.String("command", cmd.String()))
	if !b.input.Input(action) {
		return ErrBusy
	}
	return nil
}

func (b *Bridge) action(cmd Command, data interface{}) (func(context.Context) error, error) {
	switch cmd {
	case CmdPlay:
		return b.ctrl.Play, nil
	case CmdPause:
		return b.ctrl.Pause, nil
	case CmdPlayPause:
		b.mu.Lock()
		state := b.state
		b.mu.Unlock()
		if state == StateStopped {
			return b.ctrl.Play, nil
		}
		return b.ctrl.PausePlay, nil
	case CmdStop:
		return b.ctrl.Stop, nil
	case CmdNext:
		return b.ctrl.NextTrack, nil
	case CmdPrevious:
		return b.ctrl.PrevTrack, nil
	case CmdSeek:
		pos, ok := data.(time.Duration)
		if !ok {
			return nil, fmt.Errorf("invalid seek position %v", data)
		}
		return func(ctx context.Context) error { return b.ctrl.Seek(ctx, int(pos/time.Second)) }, nil
	case CmdSetShuffle:
		enabled, ok := data.(bool)
		if !ok {
			return nil, fmt.Errorf("invalid shuffle value %v", data)
		}
		mode := 0
		if enabled {
			mode = 1
		}
		return func(ctx context.Context) error { return b.ctrl.SetShuffle(ctx, mode) }, nil
	case CmdSetLoopStatus:
		status, ok := data.(LoopStatus)
		if !ok {
			return nil, fmt.Errorf("invalid loop status %v", data)
		}
		return func(ctx context.Context) error { return b.ctrl.SetRepeat(ctx, repeatOf(status)) }, nil
	case CmdSetVolume:
		volume, ok := data.(float64)
		if !ok {
			return nil, fmt.Errorf("invalid volume %v", data)
		}
		return func(ctx context.Context) error { return b.ctrl.SetVolume(ctx, int(volume*100+0.5)) }, nil
	}
	return nil, fmt.Errorf("unsupported media command %s", cmd)
}
