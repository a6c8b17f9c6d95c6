// Package transport provides the line-oriented byte channel the LMS protocol
// client runs over.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotOpen is returned by I/O on a channel that was never opened or was closed.
	ErrNotOpen = errors.New("channel not open")

	// ErrTimeout is returned by ReadLine when no complete line arrived in time.
	// The channel stays usable; a partial line is kept for the next read.
	ErrTimeout = errors.New("read timeout")

	// ErrClosed is returned when the peer closed the connection.
	ErrClosed = errors.New("connection closed by peer")
)

// Channel is a blocking, timeout-capable text stream.
type Channel interface {
	// Open connects to host:port. Opening an open channel reconnects.
	Open(ctx context.Context, host string, port int) error

	// Close closes the connection. Closing a closed channel is a no-op.
	Close() error

	// IsOpen reports whether the channel currently holds a connection.
	IsOpen() bool

	// Write queues p for sending; Flush pushes it onto the wire.
	Write(p []byte) error

	// Flush sends everything queued by Write.
	Flush() error

	// ReadLine returns the next line without its terminating newline.
	// A zero timeout waits forever.
	ReadLine(timeout time.Duration) (string, error)
}

// StatsReporter is implemented by channels that count their traffic.
type StatsReporter interface {
	Stats() (sent, received int64)
}

// Dialer creates fresh, unopened channels. The protocol client uses one for
// its command connection and another for the notification connection.
type Dialer func() Channel
