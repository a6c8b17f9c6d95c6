package lms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/horchi/vdr-plugin-squeezebox/internal/transport"
)

// Event classifies a notification line.
type Event int

const (
	EventNone Event = iota
	// EventMetadataChanged signals a new song or new stream metadata.
	EventMetadataChanged
	EventPlayerChanged
	EventPlaylistChanged
)

func (e Event) String() string {
	switch e {
	case EventMetadataChanged:
		return "metadata-changed"
	case EventPlayerChanged:
		return "player-changed"
	case EventPlaylistChanged:
		return "playlist-changed"
	}
	return "none"
}

const subscriberBuffer = 16

// StartNotify opens the notification connection and subscribes to server
// events. Calling it while active is a no-op.
func (c *Client) StartNotify(ctx context.Context) error {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if c.notify != nil {
		return nil
	}

	n := c.child()
	if err := n.Open(ctx); err != nil {
		return err
	}
	if err := n.Execute(ctx, "listen", "1"); err != nil {
		n.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	c.notify = n
	c.log.Info("Notification channel started")

	return nil
}

// StopNotify unsubscribes and closes the notification connection.
func (c *Client) StopNotify(ctx context.Context) error {
	c.notifyMu.Lock()
	n := c.notify
	c.notify = nil
	c.notifyMu.Unlock()

	if n == nil {
		return nil
	}

	// events may be queued ahead of the echo, so a mismatch is expected here
	if err := n.Execute(ctx, "listen", "0"); err != nil {
		c.log.Debug("Unsubscribe not confirmed", slog.String("stack", err.Error()))
	}

	c.log.Info("Notification channel stopped")

	return n.Close()
}

// NotifyActive reports whether StartNotify succeeded and the connection is
// still open.
func (c *Client) NotifyActive() bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	return c.notify != nil && c.notify.IsOpen()
}

// CheckNotify waits up to timeout for one notification line. A line matching
// an event triggers one full Update and raises the metadata-changed flag.
// Timeouts and unrelated lines yield EventNone and no error. A zero timeout
// uses the configured notify timeout.
func (c *Client) CheckNotify(ctx context.Context, timeout time.Duration) (Event, error) {
	c.notifyMu.Lock()
	n := c.notify
	c.notifyMu.Unlock()

	if n == nil {
		return EventNone, ErrNotifyInactive
	}
	if timeout <= 0 {
		timeout = c.cfg.NotifyTimeout
	}

	line, err := n.readLine(timeout)
	if errors.Is(err, transport.ErrTimeout) {
		return EventNone, nil
	}
	if err != nil {
		return EventNone, err
	}

	event := c.classify(line)
	if event == EventNone {
		return EventNone, nil
	}

	c.log.Debug("Got notification", slog.String("event", event.String()))

	c.metadataChanged.Store(true)
	err = c.Update(ctx, false)
	c.publish(event)

	if err != nil {
		return event, fmt.Errorf("refresh after %s: %w", event, err)
	}

	return event, nil
}

// classify matches event keywords in lines addressed to our player.
func (c *Client) classify(line string) Event {
	prefix := c.escID + " "
	if !strings.HasPrefix(line, prefix) {
		return EventNone
	}

	msg := Unescape(line[len(prefix):])

	switch {
	case strings.Contains(msg, "newsong"), strings.Contains(msg, "newmetadata"):
		return EventMetadataChanged
	case strings.Contains(msg, "pause"), strings.Contains(msg, "server"):
		return EventPlayerChanged
	case strings.Contains(msg, "playlist"):
		return EventPlaylistChanged
	}

	return EventNone
}

// HasMetadataChanged reports and clears the metadata-changed flag.
func (c *Client) HasMetadataChanged() bool {
	return c.metadataChanged.Swap(false)
}

// Subscribe returns a channel receiving every matched notification event
// after its refresh completed, and a function to cancel the subscription.
// Slow subscribers lose events.
func (c *Client) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()

	cancel := func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}

	return ch, cancel
}

func (c *Client) publish(e Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for ch := range c.subs {
		select {
		case ch <- e:
		default:
			c.log.Warn("Dropping event for slow subscriber", slog.String("event", e.String()))
		}
	}
}
