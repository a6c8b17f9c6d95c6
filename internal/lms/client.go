// Package lms implements a client for the command line interface of the
// Logitech Media Server (Squeezebox server).
package lms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/horchi/vdr-plugin-squeezebox/internal/transport"
)

const (
	DefaultHost            = "localhost"
	DefaultPort            = 9090
	DefaultHTTPPort        = 9000
	DefaultResponseTimeout = 30 * time.Second
	DefaultNotifyTimeout   = 100 * time.Millisecond
	DefaultPageSize        = 10000

	statePageSize = 100
	maxCommandLen = 100
)

// Config holds everything a Client needs to talk to one player.
type Config struct {
	Host            string
	Port            int
	HTTPPort        int
	PlayerID        string // MAC of the player
	ResponseTimeout time.Duration
	NotifyTimeout   time.Duration
	PageSize        int // page cap of range queries
}

// DefaultConfig returns a config for a server on localhost.
func DefaultConfig() Config {
	return Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		HTTPPort:        DefaultHTTPPort,
		ResponseTimeout: DefaultResponseTimeout,
		NotifyTimeout:   DefaultNotifyTimeout,
		PageSize:        DefaultPageSize,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = d.HTTPPort
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = d.ResponseTimeout
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = d.NotifyTimeout
	}
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	return c
}

// ConnState is the state of the command connection.
type ConnState int32

const (
	StateClosed ConnState = iota
	StateOpening
	StateOpen
)

func (s ConnState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	}
	return "closed"
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The client adds its own component attribute.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithDialer sets the factory for the command and notification channels.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithHTTPClient sets the HTTP client used for cover art.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithClock replaces time.Now, used for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client talks to one player over the LMS CLI. All requests are serialized:
// exactly one request is in flight on the command channel at any time.
type Client struct {
	cfg   Config
	escID string
	log   *slog.Logger
	dial  transport.Dialer
	http  *http.Client
	now   func() time.Time

	mu    sync.Mutex // held across every request and response pair
	chMu  sync.Mutex
	ch    transport.Channel
	state atomic.Int32

	stateMu sync.RWMutex
	player  PlayerState
	tracks  []TrackInfo

	notifyMu        sync.Mutex
	notify          *Client
	metadataChanged atomic.Bool

	subsMu sync.Mutex
	subs   map[chan Event]struct{}
}

// NewClient creates a closed client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg.withDefaults(),
		log:  slog.Default(),
		dial: transport.TCPDialer,
		http: &http.Client{Timeout: 10 * time.Second},
		now:  time.Now,
		subs: map[chan Event]struct{}{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.escID = Escape(c.cfg.PlayerID)
	c.log = c.log.With(slog.String("component", "lms"))

	return c
}

// child creates the client owning the notification connection.
func (c *Client) child() *Client {
	return &Client{
		cfg:   c.cfg,
		escID: c.escID,
		log:   c.log.With(slog.String("channel", "notify")),
		dial:  c.dial,
		http:  c.http,
		now:   c.now,
		subs:  map[chan Event]struct{}{},
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// PlayerID returns the escaped player id as sent on the wire.
func (c *Client) PlayerID() string {
	return c.escID
}

// Open connects the command channel.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeChannel()
	c.state.Store(int32(StateOpening))

	ch := c.dial()
	if err := ch.Open(ctx, c.cfg.Host, c.cfg.Port); err != nil {
		c.state.Store(int32(StateClosed))
		return &TransportError{Op: "open", Err: err}
	}

	c.chMu.Lock()
	c.ch = ch
	c.chMu.Unlock()
	c.state.Store(int32(StateOpen))

	c.log.Info("Connected to media server",
		slog.String("host", c.cfg.Host),
		slog.Int("port", c.cfg.Port),
		slog.String("player", c.cfg.PlayerID))

	return nil
}

// Close closes the command channel. The notification channel is left alone;
// use StopNotify for it.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeChannel()
}

func (c *Client) closeChannel() error {
	c.chMu.Lock()
	ch := c.ch
	c.ch = nil
	c.chMu.Unlock()

	c.state.Store(int32(StateClosed))

	if ch == nil {
		return nil
	}
	err := ch.Close()
	if st, ok := ch.(transport.StatsReporter); ok {
		sent, received := st.Stats()
		c.log.Debug("Connection closed",
			slog.Int64("bytes_sent", sent),
			slog.Int64("bytes_received", received))
	}
	return err
}

// IsOpen reports whether the command channel is usable.
func (c *Client) IsOpen() bool {
	return c.State() == StateOpen
}

// State returns the connection state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) channel() transport.Channel {
	c.chMu.Lock()
	defer c.chMu.Unlock()
	return c.ch
}

// fail closes the channel after an I/O error and wraps err.
func (c *Client) fail(op string, err error) error {
	c.log.Error("Channel failure, closing connection",
		slog.String("op", op),
		slog.String("stack", err.Error()))
	c.closeChannel()
	return &TransportError{Op: op, Err: err}
}

func (c *Client) timeout(ctx context.Context) time.Duration {
	t := c.cfg.ResponseTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < t {
			t = d
		}
	}
	if t <= 0 {
		t = time.Millisecond
	}
	return t
}

// exchange sends one request and returns the response body following the
// echoed command and arguments. args must already be escaped. Callers hold mu.
func (c *Client) exchange(ctx context.Context, command string, args []string) (string, error) {
	if len(command) > maxCommandLen {
		return "", fmt.Errorf("%w: %q", ErrCommandTooLong, command)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ch := c.channel()
	if ch == nil {
		return "", ErrNotOpen
	}

	prefix := c.escID + " " + escapeWords(command)
	request := prefix
	if len(args) > 0 {
		request += " " + strings.Join(args, " ")
	}

	c.log.Debug("-> request", slog.String("line", request))

	if err := ch.Write([]byte(request + "\n")); err != nil {
		return "", c.fail("write", err)
	}
	if err := ch.Flush(); err != nil {
		return "", c.fail("flush", err)
	}

	line, err := ch.ReadLine(c.timeout(ctx))
	if err != nil {
		return "", c.fail("read", err)
	}

	c.log.Debug("<- response", slog.String("line", line))

	body, ok := matchResponse(line, prefix, args)
	if !ok {
		c.log.Error("Got unexpected answer",
			slog.String("command", command),
			slog.String("line", line))
		return "", fmt.Errorf("%w to %q", ErrUnexpectedAnswer, command)
	}

	return body, nil
}

// matchResponse checks that line echoes prefix and strips the echoed
// arguments when present.
func matchResponse(line, prefix string, args []string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}

	rest := line[len(prefix):]
	if rest != "" && rest[0] != ' ' {
		return "", false
	}
	rest = strings.TrimPrefix(rest, " ")

	if len(args) > 0 {
		echo := strings.Join(args, " ")
		if rest == echo {
			rest = ""
		} else if strings.HasPrefix(rest, echo+" ") {
			rest = rest[len(echo)+1:]
		}
	}

	return rest, true
}

func escapeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = Escape(a)
	}
	return out
}

// Execute sends command with args and waits for the echo.
func (c *Client) Execute(ctx context.Context, command string, args ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.exchange(ctx, command, escapeArgs(args))
	return err
}

// executeEscaped is Execute for arguments that are already escaped.
func (c *Client) executeEscaped(ctx context.Context, command string, args []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.exchange(ctx, command, args)
	return err
}

// Query sends "<command> ?" and returns the unescaped answer.
func (c *Client) Query(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query(ctx, command)
}

func (c *Client) query(ctx context.Context, command string) (string, error) {
	body, err := c.exchange(ctx, command, []string{"?"})
	if err != nil {
		return "", err
	}
	return Unescape(body), nil
}

// QueryInt is Query for integer answers.
func (c *Client) QueryInt(ctx context.Context, command string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryInt(ctx, command)
}

func (c *Client) queryInt(ctx context.Context, command string) (int, error) {
	value, err := c.query(ctx, command)
	if err != nil {
		return 0, err
	}
	return atoi(value), nil
}

// readLine reads one unsolicited line, used by the notification channel.
func (c *Client) readLine(timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := c.channel()
	if ch == nil {
		return "", ErrNotOpen
	}

	line, err := ch.ReadLine(timeout)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			return "", err
		}
		return "", c.fail("read", err)
	}

	c.log.Debug("<- notification", slog.String("line", line))

	return line, nil
}

// PlayerState returns a copy of the player state.
func (c *Client) PlayerState() PlayerState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.player
}

// Tracks returns a copy of the track list.
func (c *Client) Tracks() []TrackInfo {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return append([]TrackInfo(nil), c.tracks...)
}

// TrackCount returns the length of the track list.
func (c *Client) TrackCount() int {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return len(c.tracks)
}

// Track returns the i-th entry of the track list.
func (c *Client) Track(i int) (TrackInfo, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	if i < 0 || i >= len(c.tracks) {
		return TrackInfo{}, false
	}
	return c.tracks[i], true
}

// CurrentTrack returns the track at the player's playlist position.
func (c *Client) CurrentTrack() (TrackInfo, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	idx := c.player.PlaylistIndex
	if idx >= 0 && idx < len(c.tracks) && c.tracks[idx].Index == idx {
		return c.tracks[idx], true
	}
	for _, t := range c.tracks {
		if t.Index == idx {
			return t, true
		}
	}
	return TrackInfo{}, false
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
