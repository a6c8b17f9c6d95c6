// Package loop runs the poll and redraw cycle of the daemon: it keeps the
// connection to the media server alive, merges notification events, user
// input, redraw ticks and periodic resyncs, and hands snapshots to renderers.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
)

// Player is the part of the protocol client the loop drives.
type Player interface {
	Open(ctx context.Context) error
	IsOpen() bool
	Close() error
	StartNotify(ctx context.Context) error
	StopNotify(ctx context.Context) error
	NotifyActive() bool
	CheckNotify(ctx context.Context, timeout time.Duration) (lms.Event, error)
	Update(ctx context.Context, stateOnly bool) error
	HasMetadataChanged() bool
	PlayerState() lms.PlayerState
	CurrentTrack() (lms.TrackInfo, bool)
	Tracks() []lms.TrackInfo
}

// Snapshot is what a renderer gets to draw.
type Snapshot struct {
	Connected       bool            `json:"connected"`
	Player          lms.PlayerState `json:"player"`
	Current         *lms.TrackInfo  `json:"current,omitempty"`
	Tracks          []lms.TrackInfo `json:"tracks"`
	Elapsed         float64         `json:"elapsed"`
	Event           lms.Event       `json:"-"`
	MetadataChanged bool            `json:"metadataChanged"`
	At              time.Time       `json:"at"`
}

// Renderer consumes snapshots. Render is called from the loop goroutine and
// should not block.
type Renderer interface {
	Render(Snapshot)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Snapshot)

func (f RendererFunc) Render(s Snapshot) { f(s) }

// Config contains the loop timings.
type Config struct {
	Tick          time.Duration // redraw interval
	Resync        time.Duration // full refresh interval, 0 disables
	RetryDelay    time.Duration // wait between reconnect attempts
	NotifyTimeout time.Duration
}

// DefaultConfig returns the loop timings used by the daemon.
func DefaultConfig() Config {
	return Config{
		Tick:          time.Second,
		Resync:        time.Minute,
		RetryDelay:    5 * time.Second,
		NotifyTimeout: lms.DefaultNotifyTimeout,
	}
}

// Runner owns the loop.
type Runner struct {
	cfg    Config
	player Player
	log    *slog.Logger
	now    func() time.Time

	input  chan func(context.Context) error
	resync chan struct{}

	mu        sync.Mutex
	renderers []Renderer
	last      Snapshot
}

// New creates a runner for player.
func New(player Player, cfg Config, logger *slog.Logger) *Runner {
	d := DefaultConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = d.Tick
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = d.RetryDelay
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = d.NotifyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		cfg:    cfg,
		player: player,
		log:    logger.With(slog.String("component", "loop")),
		now:    time.Now,
		input:  make(chan func(context.Context) error, 16),
		resync: make(chan struct{}, 1),
	}
}

// AddRenderer registers r for every following snapshot.
func (r *Runner) AddRenderer(rd Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers = append(r.renderers, rd)
}

// Input queues an action, typically a player command triggered by the user.
// It runs on the loop goroutine followed by a state-only refresh. Input
// reports false when the queue is full.
func (r *Runner) Input(action func(context.Context) error) bool {
	select {
	case r.input <- action:
		return true
	default:
		return false
	}
}

// Resync requests a full refresh.
func (r *Runner) Resync() {
	select {
	case r.resync <- struct{}{}:
	default:
	}
}

// Last returns the most recent snapshot.
func (r *Runner) Last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run blocks until ctx is canceled. Both server connections are closed on
// return.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	if r.cfg.Resync > 0 {
		s := gocron.NewScheduler(time.UTC)
		secs := max(1, int(r.cfg.Resync/time.Second))
		if _, err := s.Every(secs).Seconds().Do(r.Resync); err != nil {
			r.log.Error("Failed to schedule resync", slog.String("stack", err.Error()))
		}
		s.StartAsync()
		defer s.Stop()
	}

	events := make(chan lms.Event, 4)
	pollCtx, stopPoll := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.poll(pollCtx, events)
	}()

	defer func() {
		stopPoll()
		wg.Wait()
		r.shutdown()
	}()

	var retry <-chan time.Time
	if !r.connect(ctx) {
		retry = time.After(r.cfg.RetryDelay)
	}
	r.render(lms.EventNone)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-retry:
			retry = nil
			if !r.connect(ctx) {
				retry = time.After(r.cfg.RetryDelay)
			}
			r.render(lms.EventNone)

		case ev := <-events:
			r.render(ev)

		case action := <-r.input:
			if err := action(ctx); err != nil {
				r.log.Error("Command failed", slog.String("stack", err.Error()))
			}
			if r.player.IsOpen() {
				if err := r.player.Update(ctx, true); err != nil {
					r.log.Error("Refresh after command failed", slog.String("stack", err.Error()))
				}
			}
			r.render(lms.EventNone)

		case <-r.resync:
			if r.player.IsOpen() {
				if err := r.player.Update(ctx, false); err != nil {
					r.log.Error("Resync failed", slog.String("stack", err.Error()))
				}
			}
			r.render(lms.EventNone)

		case <-ticker.C:
			if retry == nil && (!r.player.IsOpen() || !r.player.NotifyActive()) {
				r.log.Warn("Lost connection to media server, reconnecting")
				if !r.connect(ctx) {
					retry = time.After(r.cfg.RetryDelay)
				}
			}
			r.render(lms.EventNone)
		}
	}
}

// connect opens both channels and loads the full state.
func (r *Runner) connect(ctx context.Context) bool {
	if !r.player.IsOpen() {
		if err := r.player.Open(ctx); err != nil {
			r.log.Error("Opening connection failed, retrying",
				slog.Duration("delay", r.cfg.RetryDelay),
				slog.String("stack", err.Error()))
			return false
		}
	}

	if !r.player.NotifyActive() {
		r.player.StopNotify(ctx)
		if err := r.player.StartNotify(ctx); err != nil {
			r.log.Error("Starting notifications failed", slog.String("stack", err.Error()))
			r.player.Close()
			return false
		}
	}

	if err := r.player.Update(ctx, false); err != nil {
		r.log.Error("Initial update failed", slog.String("stack", err.Error()))
		return false
	}

	return true
}

// poll waits for notifications and forwards matched events.
func (r *Runner) poll(ctx context.Context, events chan<- lms.Event) {
	for ctx.Err() == nil {
		if !r.player.NotifyActive() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.cfg.NotifyTimeout):
			}
			continue
		}

		ev, err := r.player.CheckNotify(ctx, r.cfg.NotifyTimeout)
		if err != nil && !errors.Is(err, lms.ErrNotifyInactive) {
			r.log.Error("Notification check failed", slog.String("stack", err.Error()))
		}
		if ev == lms.EventNone {
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) snapshot(ev lms.Event) Snapshot {
	now := r.now()
	player := r.player.PlayerState()

	s := Snapshot{
		Connected: r.player.IsOpen(),
		Player:    player,
		Tracks:    r.player.Tracks(),
		Elapsed:   player.Elapsed(now),
		Event:     ev,
		At:        now,
	}
	if cur, ok := r.player.CurrentTrack(); ok {
		s.Current = &cur
	}
	s.MetadataChanged = r.player.HasMetadataChanged()

	return s
}

func (r *Runner) render(ev lms.Event) {
	s := r.snapshot(ev)

	r.mu.Lock()
	r.last = s
	renderers := append([]Renderer(nil), r.renderers...)
	r.mu.Unlock()

	for _, rd := range renderers {
		rd.Render(s)
	}
}

func (r *Runner) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.player.StopNotify(ctx); err != nil {
		r.log.Debug("Stopping notifications failed", slog.String("stack", err.Error()))
	}
	if err := r.player.Close(); err != nil {
		r.log.Debug("Closing connection failed", slog.String("stack", err.Error()))
	}

	r.log.Info("Loop stopped")
}
