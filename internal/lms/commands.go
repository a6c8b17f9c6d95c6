package lms

import (
	"context"
	"fmt"
)

func (c *Client) Play(ctx context.Context) error      { return c.Execute(ctx, "play") }
func (c *Client) Pause(ctx context.Context) error     { return c.Execute(ctx, "pause", "1") }
func (c *Client) Unpause(ctx context.Context) error   { return c.Execute(ctx, "pause", "0") }
func (c *Client) PausePlay(ctx context.Context) error { return c.Execute(ctx, "pause") }
func (c *Client) Stop(ctx context.Context) error      { return c.Execute(ctx, "stop") }

func (c *Client) VolumeUp(ctx context.Context) error   { return c.Execute(ctx, "mixer volume", "+5") }
func (c *Client) VolumeDown(ctx context.Context) error { return c.Execute(ctx, "mixer volume", "-5") }

// SetVolume sets the absolute volume, clamped to 0..100.
func (c *Client) SetVolume(ctx context.Context, volume int) error {
	volume = max(0, min(100, volume))
	return c.Execute(ctx, "mixer volume", itoa(volume))
}

func (c *Client) Mute(ctx context.Context) error       { return c.Execute(ctx, "mixer muting", "1") }
func (c *Client) Unmute(ctx context.Context) error     { return c.Execute(ctx, "mixer muting", "0") }
func (c *Client) MuteToggle(ctx context.Context) error { return c.Execute(ctx, "mixer muting", "toggle") }

func (c *Client) NextTrack(ctx context.Context) error { return c.Execute(ctx, "playlist index", "+1") }
func (c *Client) PrevTrack(ctx context.Context) error { return c.Execute(ctx, "playlist index", "-1") }

// PlayTrack jumps to playlist position index.
func (c *Client) PlayTrack(ctx context.Context, index int) error {
	return c.Execute(ctx, "playlist index", itoa(index))
}

// Scroll seeks step seconds forward or, when negative, backward.
func (c *Client) Scroll(ctx context.Context, step int) error {
	return c.Execute(ctx, "time", fmt.Sprintf("%+d", step))
}

// Seek moves to an absolute position in seconds.
func (c *Client) Seek(ctx context.Context, seconds int) error {
	return c.Execute(ctx, "time", itoa(max(0, seconds)))
}

// Shuffle toggles shuffle mode; SetShuffle sets it (0 off, 1 songs, 2 albums).
func (c *Client) Shuffle(ctx context.Context) error { return c.Execute(ctx, "playlist shuffle") }
func (c *Client) SetShuffle(ctx context.Context, mode int) error {
	return c.Execute(ctx, "playlist shuffle", itoa(mode))
}

// Repeat toggles repeat mode; SetRepeat sets it (0 off, 1 song, 2 playlist).
func (c *Client) Repeat(ctx context.Context) error { return c.Execute(ctx, "playlist repeat") }
func (c *Client) SetRepeat(ctx context.Context, mode int) error {
	return c.Execute(ctx, "playlist repeat", itoa(mode))
}

func (c *Client) Clear(ctx context.Context) error        { return c.Execute(ctx, "playlist clear") }
func (c *Client) RandomTracks(ctx context.Context) error { return c.Execute(ctx, "randomplay tracks") }

// Save stores the player's playlist under the player id; Resume restores it.
func (c *Client) Save(ctx context.Context) error {
	return c.Execute(ctx, "playlist save", c.cfg.PlayerID)
}

func (c *Client) Resume(ctx context.Context) error {
	return c.Execute(ctx, "playlist resume", c.cfg.PlayerID)
}

func (c *Client) LoadPlaylist(ctx context.Context, name string) error {
	return c.Execute(ctx, "playlistcontrol", "cmd:load", "playlist_name:"+name)
}

func (c *Client) AppendPlaylist(ctx context.Context, name string) error {
	return c.Execute(ctx, "playlistcontrol", "cmd:add", "playlist_name:"+name)
}

// LoadAlbum replaces the playlist with the matching album. Empty values
// match anything.
func (c *Client) LoadAlbum(ctx context.Context, genre, artist, album string) error {
	return c.ctrlAlbum(ctx, "loadalbum", genre, artist, album)
}

func (c *Client) AppendAlbum(ctx context.Context, genre, artist, album string) error {
	return c.ctrlAlbum(ctx, "addalbum", genre, artist, album)
}

func (c *Client) ctrlAlbum(ctx context.Context, command, genre, artist, album string) error {
	wild := func(s string) string {
		if s == "" || s == "*" {
			return "*"
		}
		return Escape(s)
	}
	return c.executeEscaped(ctx, "playlist "+command, []string{wild(genre), wild(artist), wild(album)})
}

// LoadItem replaces the playlist with a browse item of level l.
func (c *Client) LoadItem(ctx context.Context, l Level, item BrowseItem) error {
	return c.ctrlItem(ctx, l, item, false)
}

// AppendItem appends a browse item of level l to the playlist.
func (c *Client) AppendItem(ctx context.Context, l Level, item BrowseItem) error {
	return c.ctrlItem(ctx, l, item, true)
}

func (c *Client) ctrlItem(ctx context.Context, l Level, item BrowseItem, add bool) error {
	q, ok := LookupRangeQuery(l.Type)
	if !ok {
		return fmt.Errorf("unknown range query type %d", l.Type)
	}

	verb := "load"
	if add {
		verb = "add"
	}

	switch l.Type {
	case RangeFavorites:
		return c.favoriteItem(ctx, item.ID, add)
	case RangeRadios:
		return c.PlayRadioItem(ctx, item.SubCommand, "", add)
	case RangeRadioApps:
		sub := item.SubCommand
		if sub == "" {
			sub = l.SubCommand
		}
		return c.PlayRadioItem(ctx, sub, item.ID, add)
	}

	return c.executeEscaped(ctx, "playlistcontrol", []string{
		Escape("cmd:" + verb),
		Escape(q.Filter + ":" + item.ID),
	})
}

func (c *Client) favoriteItem(ctx context.Context, id string, add bool) error {
	verb := "play"
	if add {
		verb = "add"
	}
	return c.Execute(ctx, "favorites playlist", verb, "item_id:"+id)
}

// PlayRadioItem plays, or with add appends, an item of a radio app.
func (c *Client) PlayRadioItem(ctx context.Context, subCommand, itemID string, add bool) error {
	if subCommand == "" {
		return ErrNoSubCommand
	}

	verb := "play"
	if add {
		verb = "add"
	}

	args := []string{verb}
	if itemID != "" {
		args = append(args, "item_id:"+itemID)
	}
	return c.Execute(ctx, subCommand+" playlist", args...)
}
