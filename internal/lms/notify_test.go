package lms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNotify(t *testing.T) (*Client, *fakeChannel, *fakeChannel) {
	t.Helper()

	srv := &fakeServer{tracks: 2, version: "8.3.1", status: testStatusBody}
	c, d := newTestClient(t, srv.respond)

	require.NoError(t, c.StartNotify(context.Background()))
	require.True(t, c.NotifyActive())

	return c, d.channel(0), d.channel(1)
}

func TestStartStopNotify(t *testing.T) {
	c, _, n := startNotify(t)

	assert.Equal(t, []string{testEscID + " listen 1"}, n.requests())

	// second start is a no-op
	require.NoError(t, c.StartNotify(context.Background()))
	assert.Len(t, n.requests(), 1)

	require.NoError(t, c.StopNotify(context.Background()))
	assert.Equal(t, testEscID+" listen 0", n.requests()[1])
	assert.False(t, n.IsOpen())
	assert.False(t, c.NotifyActive())

	_, err := c.CheckNotify(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, ErrNotifyInactive)
}

func TestCheckNotifyInactive(t *testing.T) {
	c, _ := newTestClient(t, echo)

	ev, err := c.CheckNotify(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotifyInactive)
	assert.Equal(t, EventNone, ev)
}

func TestCheckNotifyNewSong(t *testing.T) {
	c, cmd, n := startNotify(t)
	events, cancel := c.Subscribe()
	defer cancel()

	n.push(testEscID + " playlist newsong Second 1")

	ev, err := c.CheckNotify(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, EventMetadataChanged, ev)
	assert.Equal(t, 1, cmd.count("status "))
	assert.Equal(t, 2, c.TrackCount())

	assert.True(t, c.HasMetadataChanged())
	assert.False(t, c.HasMetadataChanged())

	select {
	case got := <-events:
		assert.Equal(t, EventMetadataChanged, got)
	default:
		t.Error("Expected event for subscriber")
	}
}

func TestCheckNotifyNoMatch(t *testing.T) {
	c, cmd, n := startNotify(t)

	n.push(testEscID + " mixer volume:40")

	ev, err := c.CheckNotify(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, EventNone, ev)
	assert.Zero(t, cmd.count("status "))
	assert.False(t, c.HasMetadataChanged())
}

func TestCheckNotifyOtherPlayer(t *testing.T) {
	c, cmd, n := startNotify(t)

	n.push("aa%3Abb%3Acc%3Add%3Aee%3Aff playlist newsong")

	ev, err := c.CheckNotify(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, EventNone, ev)
	assert.Zero(t, cmd.count("status "))
}

func TestCheckNotifyTimeout(t *testing.T) {
	c, cmd, _ := startNotify(t)

	ev, err := c.CheckNotify(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, EventNone, ev)
	assert.Zero(t, cmd.count("status "))
}

func TestClassify(t *testing.T) {
	c := NewClient(Config{PlayerID: testPlayerID})

	tests := []struct {
		line string
		want Event
	}{
		{testEscID + " playlist newsong", EventMetadataChanged},
		{testEscID + " playlist newmetadata", EventMetadataChanged},
		{testEscID + " playlist pause 1", EventPlayerChanged},
		{testEscID + " client reconnect server", EventPlayerChanged},
		{testEscID + " playlist addtracks", EventPlaylistChanged},
		{testEscID + " mixer volume:40", EventNone},
		{testEscID + " prefset server volume 40", EventPlayerChanged},
		{"listen 1", EventNone},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, c.classify(tt.line))
		})
	}
}

func TestSubscribeCancel(t *testing.T) {
	c := NewClient(Config{PlayerID: testPlayerID})

	events, cancel := c.Subscribe()
	cancel()
	cancel()

	_, ok := <-events
	assert.False(t, ok)

	// publishing without subscribers must not block
	c.publish(EventPlayerChanged)
}
