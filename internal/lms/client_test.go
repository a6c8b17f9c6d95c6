package lms

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/horchi/vdr-plugin-squeezebox/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{PlayerID: testPlayerID})

	cfg := c.Config()
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultHTTPPort, cfg.HTTPPort)
	assert.Equal(t, DefaultResponseTimeout, cfg.ResponseTimeout)
	assert.Equal(t, DefaultNotifyTimeout, cfg.NotifyTimeout)
	assert.Equal(t, testEscID, c.PlayerID())
	assert.Equal(t, StateClosed, c.State())
	assert.False(t, c.IsOpen())
}

func TestOpenClose(t *testing.T) {
	c, d := newTestClient(t, echo)

	assert.True(t, c.IsOpen())
	assert.Equal(t, StateOpen, c.State())
	assert.True(t, d.channel(0).IsOpen())

	require.NoError(t, c.Close())
	assert.False(t, c.IsOpen())
	assert.False(t, d.channel(0).IsOpen())

	// closing twice is fine
	require.NoError(t, c.Close())
}

func TestCloseLogsTraffic(t *testing.T) {
	log, h := newRecorder()
	c, _ := newTestClient(t, echo, WithLogger(log))

	require.NoError(t, c.Play(context.Background()))
	require.NoError(t, c.Close())

	attrs, ok := h.attrs("Connection closed")
	require.True(t, ok)
	line := int64(len(testEscID + " play\n"))
	assert.Equal(t, line, attrs["bytes_sent"].Int64())
	assert.Equal(t, line, attrs["bytes_received"].Int64())
}

func TestOpenFailure(t *testing.T) {
	refused := errors.New("connection refused")
	c := NewClient(Config{PlayerID: testPlayerID}, WithDialer(func() transport.Channel {
		return &fakeChannel{openErr: refused}
	}))

	err := c.Open(context.Background())

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "open", te.Op)
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, StateClosed, c.State())
}

func TestPlayEcho(t *testing.T) {
	c, d := newTestClient(t, echo)

	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	assert.Equal(t, []string{testEscID + " play"}, d.channel(0).requests())
}

func TestPlayWrongEcho(t *testing.T) {
	c, _ := newTestClient(t, func(string) []string {
		return []string{testEscID + " pause"}
	})

	err := c.Play(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedAnswer)

	var te *TransportError
	assert.False(t, errors.As(err, &te), "protocol failure must not look like a transport failure")

	// a mismatch does not break the connection
	assert.True(t, c.IsOpen())
}

func TestEchoWordBoundary(t *testing.T) {
	c, _ := newTestClient(t, func(string) []string {
		return []string{testEscID + " playlist"}
	})

	assert.ErrorIs(t, c.Play(context.Background()), ErrUnexpectedAnswer)
}

func TestOtherPlayerEcho(t *testing.T) {
	c, _ := newTestClient(t, func(line string) []string {
		return []string{strings.Replace(line, testEscID, "aa%3Abb", 1)}
	})

	assert.ErrorIs(t, c.Stop(context.Background()), ErrUnexpectedAnswer)
}

func TestQuery(t *testing.T) {
	c, d := newTestClient(t, func(line string) []string {
		switch line {
		case testEscID + " mixer volume ?":
			return []string{testEscID + " mixer volume 37"}
		case testEscID + " version ?":
			return []string{testEscID + " version 8.3.1"}
		case testEscID + " playlist name ?":
			return []string{testEscID + " playlist name My%20Mix"}
		}
		return nil
	})
	ctx := context.Background()

	v, err := c.QueryInt(ctx, "mixer volume")
	require.NoError(t, err)
	assert.Equal(t, 37, v)

	s, err := c.Query(ctx, "version")
	require.NoError(t, err)
	assert.Equal(t, "8.3.1", s)

	s, err = c.Query(ctx, "playlist name")
	require.NoError(t, err)
	assert.Equal(t, "My Mix", s)

	assert.Equal(t, testEscID+" mixer volume ?", d.channel(0).requests()[0])
}

func TestQueryMismatch(t *testing.T) {
	c, _ := newTestClient(t, func(string) []string {
		return []string{testEscID + " mixer muting 1"}
	})

	v, err := c.QueryInt(context.Background(), "mixer volume")
	assert.ErrorIs(t, err, ErrUnexpectedAnswer)
	assert.Zero(t, v)
}

func TestExecuteEscapesArgs(t *testing.T) {
	c, d := newTestClient(t, echo)

	require.NoError(t, c.Execute(context.Background(), "mixer volume", "+5"))
	require.NoError(t, c.LoadPlaylist(context.Background(), "Rock & Roll"))

	assert.Equal(t, []string{
		testEscID + " mixer volume %2B5",
		testEscID + " playlistcontrol cmd%3Aload playlist_name%3ARock%20%26%20Roll",
	}, d.channel(0).requests())
}

func TestNotOpen(t *testing.T) {
	c := NewClient(Config{PlayerID: testPlayerID})

	assert.ErrorIs(t, c.Play(context.Background()), ErrNotOpen)
	_, err := c.Query(context.Background(), "mode")
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestTransportFailureCloses(t *testing.T) {
	c, d := newTestClient(t, echo)
	d.channel(0).readErr = errors.New("connection reset")

	err := c.Play(context.Background())

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "read", te.Op)
	assert.False(t, c.IsOpen())
	assert.ErrorIs(t, c.Play(context.Background()), ErrNotOpen)
}

func TestResponseTimeoutCloses(t *testing.T) {
	c, _ := newTestClient(t, func(string) []string { return nil })

	err := c.Stop(context.Background())

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.False(t, c.IsOpen())
}

func TestCommandTooLong(t *testing.T) {
	c, d := newTestClient(t, echo)

	err := c.Execute(context.Background(), strings.Repeat("x", maxCommandLen+1))
	assert.ErrorIs(t, err, ErrCommandTooLong)
	assert.Empty(t, d.channel(0).requests())
}

func TestCanceledContext(t *testing.T) {
	c, d := newTestClient(t, echo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Play(ctx), context.Canceled)
	assert.Empty(t, d.channel(0).requests())
}

func TestMatchResponse(t *testing.T) {
	prefix := testEscID + " status"
	args := []string{"0", "2", "tags%3Aa"}

	body, ok := matchResponse(prefix+" 0 2 tags%3Aa mode%3Aplay", prefix, args)
	require.True(t, ok)
	assert.Equal(t, "mode%3Aplay", body)

	body, ok = matchResponse(prefix+" 0 2 tags%3Aa", prefix, args)
	require.True(t, ok)
	assert.Empty(t, body)

	_, ok = matchResponse(testEscID+" stop", prefix, args)
	assert.False(t, ok)
}
