package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const writeTimeout = 5 * time.Second

var (
	_ Channel       = (*TCPChannel)(nil)
	_ StatsReporter = (*TCPChannel)(nil)
)

// TCPChannel is a Channel over a TCP connection.
type TCPChannel struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	pending []byte // partial line left over from a timed out read

	bytesSent     int64
	bytesReceived int64
}

// NewTCPChannel creates an unopened TCP channel.
func NewTCPChannel() *TCPChannel {
	return &TCPChannel{}
}

// TCPDialer is a Dialer producing TCP channels.
func TCPDialer() Channel {
	return NewTCPChannel()
}

// Open connects to host:port
func (c *TCPChannel) Open(ctx context.Context, host string, port int) error {
	c.Close()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("failed to connect to %s:%d: %w", host, port, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.writer = bufio.NewWriter(conn)
	c.pending = nil
	c.mu.Unlock()

	return nil
}

// Close closes the connection
func (c *TCPChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.writer = nil
	c.pending = nil
	return err
}

// IsOpen reports whether a connection is held
func (c *TCPChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Write buffers p
func (c *TCPChannel) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotOpen
	}

	n, err := c.writer.Write(p)
	c.bytesSent += int64(n)
	return err
}

// Flush sends buffered data
func (c *TCPChannel) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotOpen
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.writer.Flush()
}

// ReadLine reads one newline terminated line. The line may be arbitrarily
// long; the reader grows as needed.
func (c *TCPChannel) ReadLine(timeout time.Duration) (string, error) {
	c.mu.Lock()
	conn, reader := c.conn, c.reader
	c.mu.Unlock()

	if conn == nil {
		return "", ErrNotOpen
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	data, err := reader.ReadBytes('\n')

	c.mu.Lock()
	defer c.mu.Unlock()

	c.bytesReceived += int64(len(data))

	if err != nil {
		// keep what we got so the line is complete on the next call
		c.pending = append(c.pending, data...)

		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", ErrTimeout
		}
		if errors.Is(err, io.EOF) {
			return "", ErrClosed
		}
		return "", err
	}

	if len(c.pending) > 0 {
		data = append(c.pending, data...)
		c.pending = nil
	}

	return strings.TrimRight(string(data), "\r\n"), nil
}

// Stats returns the number of bytes written and read since creation.
func (c *TCPChannel) Stats() (sent, received int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesSent, c.bytesReceived
}
