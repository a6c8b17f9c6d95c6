package lms

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, ctx Context, line string) []Field {
	t.Helper()

	d := NewDecoder(ctx)
	d.Set(line)

	var fields []Field
	for {
		f, err := d.Next()
		if errors.Is(err, ErrEndOfPacket) {
			return fields
		}
		if err != nil && !errors.Is(err, ErrUnknownTag) {
			t.Fatalf("Next failed: %v", err)
		}
		fields = append(fields, f)
	}
}

func TestDecoderNext(t *testing.T) {
	fields := decodeAll(t, ContextStatus, "mode:play time%3A12.5 mixer%20volume%3A40 can_seek")

	require.Len(t, fields, 4)
	assert.Equal(t, Field{Tag: TagMode, Name: "mode", Value: "play"}, fields[0])
	assert.Equal(t, Field{Tag: TagTime, Name: "time", Value: "12.5"}, fields[1])
	assert.Equal(t, Field{Tag: TagMixerVolume, Name: "mixer volume", Value: "40"}, fields[2])
	assert.Equal(t, Field{Tag: TagCanSeek, Name: "can_seek"}, fields[3])
}

func TestDecoderEndOfPacket(t *testing.T) {
	d := NewDecoder(ContextAny)

	_, err := d.Next()
	assert.ErrorIs(t, err, ErrEndOfPacket)

	d.Set("   ")
	_, err = d.Next()
	assert.ErrorIs(t, err, ErrEndOfPacket)

	d.Set("mode:stop")
	_, err = d.Next()
	require.NoError(t, err)
	_, err = d.Next()
	assert.ErrorIs(t, err, ErrEndOfPacket)

	// Set rewinds
	d.Set("mode:stop")
	f, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "stop", f.Value)
}

func TestDecoderUnknownTag(t *testing.T) {
	d := NewDecoder(ContextStatus)
	d.Set("bogus:1 mode:pause")

	f, err := d.Next()
	assert.ErrorIs(t, err, ErrUnknownTag)
	assert.Equal(t, Field{Tag: TagUnknown, Name: "bogus", Value: "1"}, f)

	f, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, TagMode, f.Tag)
}

func TestDecoderFirstColonWins(t *testing.T) {
	fields := decodeAll(t, ContextTrack, "url:http%3A%2F%2Fhost%2Fa%3Ab")

	require.Len(t, fields, 1)
	assert.Equal(t, TagTrackURL, fields[0].Tag)
	assert.Equal(t, "http://host/a:b", fields[0].Value)
}

func TestDecoderLiteralMultiWordTag(t *testing.T) {
	fields := decodeAll(t, ContextTrack, "playlist index:3 title:A")

	require.Len(t, fields, 2)
	assert.Equal(t, Field{Tag: TagPlaylistIndex, Name: "playlist index", Value: "3"}, fields[0])
	assert.Equal(t, TagTrackTitle, fields[1].Tag)
}

func TestDecoderContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		tag  string
		want Tag
	}{
		{"status duration", ContextStatus, "duration", TagDuration},
		{"track duration", ContextTrack, "duration", TagTrackDuration},
		{"browse id", ContextBrowse, "id", TagItemID},
		{"track id", ContextTrack, "id", TagTrackID},
		{"literal fallback", ContextStatus, "id", TagTrackID},
		{"status tag in track context", ContextTrack, "mode", TagMode},
		{"volume alias", ContextStatus, "volume", TagMixerVolume},
		{"any", ContextAny, "genre", TagTrackGenre},
		{"unknown", ContextBrowse, "nonsense", TagUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LookupTag(tt.tag, tt.ctx))
		})
	}
}

func TestTagTable(t *testing.T) {
	for tag := TagUnknown + 1; tag < tagCount; tag++ {
		if !tag.IsValid() {
			t.Errorf("Expected %d to be valid", tag)
		}
		if tag.String() == "<unknown>" {
			t.Errorf("Tag %d has no name", tag)
		}
		if tag.Namespace() == 0 {
			t.Errorf("Tag %s has no namespace", tag)
		}
	}

	assert.Equal(t, "mixer volume", TagMixerVolume.String())
	assert.Equal(t, NamespaceTrack, TagPlaylistIndex.Namespace())
	assert.False(t, TagUnknown.IsValid())
}
