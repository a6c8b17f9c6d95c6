// Package osdweb serves the player state to browser based on screen displays:
// a small JSON API for state, browsing and commands plus live pushes over
// server sent events and websockets.
package osdweb

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"

	"github.com/horchi/vdr-plugin-squeezebox/internal/artwork"
	"github.com/horchi/vdr-plugin-squeezebox/internal/history"
	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
	"github.com/horchi/vdr-plugin-squeezebox/internal/loop"
)

// StateStream is the SSE stream carrying state updates.
const StateStream = "state"

const (
	defaultPageSize = 50
	coverTimeout    = 10 * time.Second
	wsBuffer        = 8
)

// Player is the part of the protocol client the web OSD uses.
type Player interface {
	Play(ctx context.Context) error
	PausePlay(ctx context.Context) error
	Stop(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PrevTrack(ctx context.Context) error
	VolumeUp(ctx context.Context) error
	VolumeDown(ctx context.Context) error
	SetVolume(ctx context.Context, volume int) error
	MuteToggle(ctx context.Context) error
	PlayTrack(ctx context.Context, index int) error
	Scroll(ctx context.Context, step int) error
	Shuffle(ctx context.Context) error
	Repeat(ctx context.Context) error
	Clear(ctx context.Context) error
	RandomTracks(ctx context.Context) error
	QueryLevel(ctx context.Context, l lms.Level, offset, count int) (*lms.RangeResult, error)
	LoadItem(ctx context.Context, l lms.Level, item lms.BrowseItem) error
	AppendItem(ctx context.Context, l lms.Level, item lms.BrowseItem) error
}

// Dispatcher runs player commands on the loop goroutine.
type Dispatcher interface {
	Input(action func(context.Context) error) bool
}

// Covers is the artwork cache.
type Covers interface {
	Key(track lms.TrackInfo) uint64
	Get(ctx context.Context, track lms.TrackInfo) (*artwork.Cover, error)
	Current() (*artwork.Cover, bool)
	Invalidate()
}

// History lists recent plays.
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Config contains the web OSD settings.
type Config struct {
	Addr     string
	PageSize int
}

// State is the document pushed to clients.
type State struct {
	loop.Snapshot
	Cover *artwork.Cover `json:"cover,omitempty"`
}

// Server is the web OSD. It is a loop.Renderer.
type Server struct {
	cfg     Config
	player  Player
	input   Dispatcher
	covers  Covers
	history History
	log     *slog.Logger

	events *sse.Server
	http   *http.Server

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	payload  []byte
	coverKey uint64
	clients  map[chan []byte]struct{}
}

// New creates the server. covers and hist may be nil.
func New(cfg Config, player Player, input Dispatcher, covers Covers, hist History, logger *slog.Logger) *Server {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	events := sse.New()
	events.AutoReplay = false
	events.CreateStream(StateStream)

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:     cfg,
		player:  player,
		input:   input,
		covers:  covers,
		history: hist,
		log:     logger.With(slog.String("component", "osdweb")),
		events:  events,
		ctx:     ctx,
		cancel:  cancel,
		payload: []byte("{}"),
		clients: map[chan []byte]struct{}{},
	}
}

// Handler returns the routes wrapped in a permissive CORS handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/browse", s.handleBrowse)
	mux.HandleFunc("/api/load", s.handleLoad)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/cover", s.handleCover)
	mux.HandleFunc("/events", s.events.ServeHTTP)
	mux.HandleFunc("/ws", s.handleWS)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	})

	return c.Handler(mux)
}

// ListenAndServe serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.log.Info("Web OSD listening", slog.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the HTTP server and drops all push clients.
func (s *Server) Close() error {
	s.cancel()
	s.events.Close()

	s.mu.Lock()
	for ch := range s.clients {
		close(ch)
		delete(s.clients, ch)
	}
	s.mu.Unlock()

	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Render publishes a snapshot. Covers of a new current track are fetched in
// the background and pushed once available.
func (s *Server) Render(snap loop.Snapshot) {
	s.mu.Lock()
	if s.covers != nil && snap.MetadataChanged {
		s.covers.Invalidate()
		s.coverKey = 0
	}
	s.state.Snapshot = snap
	fetch := s.updateCoverLocked()
	s.publishLocked()
	s.mu.Unlock()

	if fetch != nil {
		go s.fetchCover(*fetch)
	}
}

// updateCoverLocked attaches the cached cover of the current track and
// returns the track when its cover still has to be fetched.
func (s *Server) updateCoverLocked() *lms.TrackInfo {
	if s.covers == nil || s.state.Current == nil {
		s.state.Cover = nil
		return nil
	}

	key := s.covers.Key(*s.state.Current)
	if key == s.coverKey {
		if cover, ok := s.covers.Current(); ok && cover.Key == key {
			s.state.Cover = cover
		}
		return nil
	}

	s.coverKey = key
	s.state.Cover = nil
	track := *s.state.Current
	return &track
}

func (s *Server) fetchCover(track lms.TrackInfo) {
	ctx, cancel := context.WithTimeout(s.ctx, coverTimeout)
	defer cancel()

	cover, err := s.covers.Get(ctx, track)
	if err != nil {
		s.log.Debug("No cover", slog.String("title", track.DisplayTitle()), slog.String("stack", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cover.Key != s.coverKey {
		return
	}
	s.state.Cover = cover
	s.publishLocked()
}

func (s *Server) publishLocked() {
	data, err := json.Marshal(s.state)
	if err != nil {
		s.log.Error("Failed to encode state", slog.String("stack", err.Error()))
		return
	}
	s.payload = data

	s.events.Publish(StateStream, &sse.Event{Data: data})

	for ch := range s.clients {
		select {
		case ch <- data:
		default:
			s.log.Debug("Websocket client too slow, dropping update")
		}
	}
}

// Payload returns the last published state document.
func (s *Server) Payload() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload
}

func (s *Server) subscribe() (chan []byte, []byte) {
	ch := make(chan []byte, wsBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[ch] = struct{}{}
	return ch, s.payload
}

func (s *Server) unsubscribe(ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[ch]; ok {
		delete(s.clients, ch)
		close(ch)
	}
}
