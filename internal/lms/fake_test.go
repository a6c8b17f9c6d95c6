package lms

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/horchi/vdr-plugin-squeezebox/internal/transport"
)

const (
	testPlayerID = "00:04:20:12:34:56"
	testEscID    = "00%3A04%3A20%3A12%3A34%3A56"
)

// fakeChannel is a scripted transport.Channel. Every flushed request line is
// recorded and answered by respond.
type fakeChannel struct {
	mu      sync.Mutex
	open    bool
	openErr error
	readErr error
	pending string
	sent    []string
	replies []string
	respond func(line string) []string

	bytesSent, bytesReceived int64
}

func (f *fakeChannel) Stats() (sent, received int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bytesSent, f.bytesReceived
}

func (f *fakeChannel) Open(ctx context.Context, host string, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *fakeChannel) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeChannel) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return transport.ErrNotOpen
	}
	f.pending += string(p)
	f.bytesSent += int64(len(p))
	return nil
}

func (f *fakeChannel) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return transport.ErrNotOpen
	}
	for {
		i := strings.IndexByte(f.pending, '\n')
		if i < 0 {
			return nil
		}
		line := f.pending[:i]
		f.pending = f.pending[i+1:]
		f.sent = append(f.sent, line)
		if f.respond != nil {
			f.replies = append(f.replies, f.respond(line)...)
		}
	}
}

func (f *fakeChannel) ReadLine(timeout time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return "", transport.ErrNotOpen
	}
	if f.readErr != nil {
		return "", f.readErr
	}
	if len(f.replies) == 0 {
		return "", transport.ErrTimeout
	}
	line := f.replies[0]
	f.replies = f.replies[1:]
	f.bytesReceived += int64(len(line) + 1)
	return line, nil
}

// push queues unsolicited lines, like server notifications.
func (f *fakeChannel) push(lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, lines...)
}

func (f *fakeChannel) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// count returns the number of requests starting with the escaped player id
// followed by prefix.
func (f *fakeChannel) count(prefix string) int {
	n := 0
	for _, r := range f.requests() {
		if strings.HasPrefix(r, testEscID+" "+prefix) {
			n++
		}
	}
	return n
}

// fakeServer answers the requests of Update and echoes everything else.
type fakeServer struct {
	mu      sync.Mutex
	tracks  int
	version string
	muted   int
	status  string // body appended to the status echo
}

func (s *fakeServer) respond(line string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rest := strings.TrimPrefix(line, testEscID+" ")

	switch {
	case rest == "playlist tracks ?":
		return []string{testEscID + " playlist tracks " + itoa(s.tracks)}
	case rest == "version ?":
		return []string{testEscID + " version " + Escape(s.version)}
	case rest == "mixer muting ?":
		return []string{testEscID + " mixer muting " + itoa(s.muted)}
	case strings.HasPrefix(rest, "status "):
		return []string{line + " " + s.status}
	}

	return []string{line}
}

func echo(line string) []string {
	return []string{line}
}

// newTestClient returns an open client whose channels answer with respond.
// The first channel is the command channel, later ones serve notifications.
func newTestClient(t *testing.T, respond func(string) []string, opts ...Option) (*Client, *fakeDialer) {
	t.Helper()

	d := &fakeDialer{respond: respond}
	cfg := DefaultConfig()
	cfg.PlayerID = testPlayerID

	opts = append([]Option{WithDialer(d.dial), WithLogger(slog.New(&recordHandler{store: &recordStore{}}))}, opts...)
	c := NewClient(cfg, opts...)

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return c, d
}

type fakeDialer struct {
	mu       sync.Mutex
	respond  func(string) []string
	channels []*fakeChannel
}

func (d *fakeDialer) dial() transport.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := &fakeChannel{respond: d.respond}
	d.channels = append(d.channels, ch)
	return ch
}

func (d *fakeDialer) channel(i int) *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.channels) {
		return nil
	}
	return d.channels[i]
}

// recordHandler collects log records for assertions.
type recordStore struct {
	mu      sync.Mutex
	records []slog.Record
}

type recordHandler struct {
	store *recordStore
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.records = append(h.store.records, r.Clone())
	return nil
}

func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordHandler) count(level slog.Level) int {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	n := 0
	for _, r := range h.store.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

// attrs returns the attributes of the first record logged with msg.
func (h *recordHandler) attrs(msg string) (map[string]slog.Value, bool) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	for _, r := range h.store.records {
		if r.Message != msg {
			continue
		}
		m := map[string]slog.Value{}
		r.Attrs(func(a slog.Attr) bool {
			m[a.Key] = a.Value
			return true
		})
		return m, true
	}
	return nil, false
}

func newRecorder() (*slog.Logger, *recordHandler) {
	h := &recordHandler{store: &recordStore{}}
	return slog.New(h), h
}
