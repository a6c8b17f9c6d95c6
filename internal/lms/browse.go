package lms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// RangeQueryType selects a browse level.
type RangeQueryType int

const (
	RangeUnknown RangeQueryType = iota
	RangeGenres
	RangeArtists
	RangeAlbums
	RangeYears
	RangeTracks
	RangePlaylists
	RangeRadios
	RangeRadioApps
	RangeFavorites
	RangeNewMusic
)

// RangeQuery describes how one browse level is requested and decoded.
type RangeQuery struct {
	Type    RangeQueryType
	Name    string
	Command string   // request verb; empty when it is the sub-command of the parent item
	Params  []string // fixed extra parameters, unescaped
	IDTag   Tag      // field holding the item id
	Content Tag      // field holding the display text
	Filter  string   // key used when drilling into or loading an item
	Child   RangeQueryType
	Audio   bool // items are playable unless the server says otherwise
}

// RangeQueries is the browse hierarchy.
var RangeQueries = []RangeQuery{
	{Type: RangeGenres, Name: "genres", Command: "genres",
		IDTag: TagItemID, Content: TagItemGenre, Filter: "genre_id", Child: RangeArtists, Audio: true},
	{Type: RangeArtists, Name: "artists", Command: "artists",
		IDTag: TagItemID, Content: TagItemArtist, Filter: "artist_id", Child: RangeAlbums, Audio: true},
	{Type: RangeAlbums, Name: "albums", Command: "albums", Params: []string{"tags:la"},
		IDTag: TagItemID, Content: TagItemAlbum, Filter: "album_id", Child: RangeTracks, Audio: true},
	{Type: RangeYears, Name: "years", Command: "years",
		IDTag: TagItemYear, Content: TagItemYear, Filter: "year", Child: RangeAlbums, Audio: true},
	{Type: RangeTracks, Name: "tracks", Command: "tracks",
		IDTag: TagItemID, Content: TagItemTitle, Filter: "track_id", Audio: true},
	{Type: RangePlaylists, Name: "playlists", Command: "playlists",
		IDTag: TagItemID, Content: TagItemPlaylist, Filter: "playlist_id", Audio: true},
	{Type: RangeRadios, Name: "radios", Command: "radios",
		IDTag: TagItemCmd, Content: TagItemName, Child: RangeRadioApps},
	{Type: RangeRadioApps, Name: "radioapps",
		IDTag: TagItemID, Content: TagItemName, Filter: "item_id", Child: RangeRadioApps},
	{Type: RangeFavorites, Name: "favorites", Command: "favorites items",
		IDTag: TagItemID, Content: TagItemName, Filter: "item_id", Child: RangeFavorites},
	{Type: RangeNewMusic, Name: "newmusic", Command: "albums", Params: []string{"sort:new", "tags:la"},
		IDTag: TagItemID, Content: TagItemAlbum, Filter: "album_id", Child: RangeTracks, Audio: true},
}

// LookupRangeQuery returns the table row of t.
func LookupRangeQuery(t RangeQueryType) (RangeQuery, bool) {
	for _, q := range RangeQueries {
		if q.Type == t {
			return q, true
		}
	}
	return RangeQuery{}, false
}

// ParseRangeQueryType maps a name like "genres" to its type.
func ParseRangeQueryType(name string) RangeQueryType {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, q := range RangeQueries {
		if q.Name == name {
			return q.Type
		}
	}
	return RangeUnknown
}

func (t RangeQueryType) String() string {
	if q, ok := LookupRangeQuery(t); ok {
		return q.Name
	}
	return "unknown"
}

// Parameters is an ordered list of escaped key:value arguments.
type Parameters []string

// Append returns a copy of p with key:value added.
func (p Parameters) Append(key, value string) Parameters {
	out := make(Parameters, len(p), len(p)+1)
	copy(out, p)
	return append(out, Escape(key+":"+value))
}

// With returns a copy of p where an existing entry for key is replaced by
// key:value, or key:value is appended. Item ids of app and favorite menus are
// full paths, so a deeper level supersedes the previous one.
func (p Parameters) With(key, value string) Parameters {
	prefix := Escape(key + ":")
	for i, e := range p {
		if strings.HasPrefix(e, prefix) {
			out := append(Parameters(nil), p...)
			out[i] = Escape(key + ":" + value)
			return out
		}
	}
	return p.Append(key, value)
}

func (p Parameters) String() string {
	return strings.Join(p, " ")
}

// BrowseItem is one entry of a range query result.
type BrowseItem struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	SubCommand  string `json:"subCommand,omitempty"`
	HasChildren bool   `json:"hasChildren"`
	IsAudio     bool   `json:"isAudio"`
}

// RangeResult is one page of a range query.
type RangeResult struct {
	Items     []BrowseItem `json:"items"`
	Total     int          `json:"total"`
	Truncated bool         `json:"truncated"`
}

// Level addresses one browse level: its type, the accumulated filters and,
// below radio apps, the sub-command of the app.
type Level struct {
	Type       RangeQueryType `json:"type"`
	SubCommand string         `json:"subCommand,omitempty"`
	Filters    Parameters     `json:"filters,omitempty"`
}

// Drill computes the level below item of a parent level.
func Drill(parent RangeQueryType, item BrowseItem, filters Parameters) (RangeQueryType, Parameters, bool) {
	q, ok := LookupRangeQuery(parent)
	if !ok || q.Child == RangeUnknown || !item.HasChildren {
		return RangeUnknown, filters, false
	}
	if q.Filter != "" {
		filters = filters.With(q.Filter, item.ID)
	}
	return q.Child, filters, true
}

// Drill returns the child level of item.
func (l Level) Drill(item BrowseItem) (Level, bool) {
	child, filters, ok := Drill(l.Type, item, l.Filters)
	if !ok {
		return Level{}, false
	}

	sub := l.SubCommand
	if item.SubCommand != "" {
		sub = item.SubCommand
	}
	return Level{Type: child, SubCommand: sub, Filters: filters}, true
}

// QueryRange fetches up to count items of type t starting at offset.
func (c *Client) QueryRange(ctx context.Context, t RangeQueryType, offset, count int, filters Parameters) (*RangeResult, error) {
	return c.QueryLevel(ctx, Level{Type: t, Filters: filters}, offset, count)
}

// QueryLevel fetches up to count items of level l starting at offset. count
// is capped at the configured page size. When the server reports more items
// than fit the page, the result is truncated and a warning logged.
func (c *Client) QueryLevel(ctx context.Context, l Level, offset, count int) (*RangeResult, error) {
	q, ok := LookupRangeQuery(l.Type)
	if !ok {
		return nil, fmt.Errorf("unknown range query type %d", l.Type)
	}
	if count <= 0 || count > c.cfg.PageSize {
		count = c.cfg.PageSize
	}

	command := q.Command
	if command == "" {
		if l.SubCommand == "" {
			return nil, ErrNoSubCommand
		}
		command = l.SubCommand + " items"
	}

	args := []string{itoa(offset), itoa(count)}
	args = append(args, escapeArgs(q.Params)...)
	args = append(args, l.Filters...)

	c.mu.Lock()
	body, err := c.exchange(ctx, command, args)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	res := parseRange(body, q, l.SubCommand, count, c.log)
	if res.Total-offset > count {
		res.Truncated = true
		c.log.Warn("Range query truncated",
			slog.String("query", q.Name),
			slog.Int("total", res.Total),
			slog.Int("more", res.Total-offset-count))
	}

	return res, nil
}

// parseRange segments the body into items: a field recurring within the
// current item starts the next one.
func parseRange(body string, q RangeQuery, sub string, max int, log *slog.Logger) *RangeResult {
	res := &RangeResult{Items: []BrowseItem{}}

	var (
		fields []Field
		seen   = map[string]bool{}
	)

	flush := func() {
		if len(fields) > 0 && len(res.Items) < max {
			res.Items = append(res.Items, q.item(fields, sub))
		}
		fields = nil
		clear(seen)
	}

	dec := NewDecoder(ContextBrowse)
	dec.Set(body)

	for {
		f, err := dec.Next()
		if errors.Is(err, ErrEndOfPacket) {
			break
		}
		if errors.Is(err, ErrUnknownTag) {
			log.Debug("Ignoring unexpected tag", slog.String("tag", f.Name))
		}

		switch f.Tag {
		case TagItemCount:
			res.Total = atoi(f.Value)
			continue
		case TagRescan:
			continue
		}

		if seen[f.Name] {
			flush()
		}
		seen[f.Name] = true
		fields = append(fields, f)
	}

	flush()

	if res.Total < len(res.Items) {
		res.Total = len(res.Items)
	}

	return res
}

func (q RangeQuery) item(fields []Field, sub string) BrowseItem {
	item := BrowseItem{
		HasChildren: q.Child != RangeUnknown,
		IsAudio:     q.Audio,
	}

	var name, title string

	for _, f := range fields {
		if f.Tag == q.IDTag {
			item.ID = f.Value
		}
		if f.Tag == q.Content {
			item.Content = f.Value
		}

		switch f.Tag {
		case TagItemName:
			name = f.Value
		case TagItemTitle:
			title = f.Value
		case TagItemCmd:
			item.SubCommand = f.Value
		case TagItemHasItems:
			item.HasChildren = atob(f.Value)
		case TagItemIsAudio:
			item.IsAudio = atob(f.Value)
		}
	}

	if item.Content == "" {
		item.Content = name
	}
	if item.Content == "" {
		item.Content = title
	}
	if item.SubCommand == "" {
		item.SubCommand = sub
	}

	return item
}
