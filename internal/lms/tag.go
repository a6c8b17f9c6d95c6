package lms

// Tag identifies a field of a server response.
type Tag int

// Namespace groups tags by the query they are valid in.
type Namespace int

const (
	NamespaceStatus Namespace = iota + 1 // player status
	NamespaceTrack                       // playlist entries of a status query
	NamespaceBrowse                      // range query results
)

// Context selects the namespace the Decoder resolves names in first.
type Context int

const (
	ContextAny Context = iota
	ContextStatus
	ContextTrack
	ContextBrowse
)

func (c Context) namespace() Namespace {
	switch c {
	case ContextStatus:
		return NamespaceStatus
	case ContextTrack:
		return NamespaceTrack
	case ContextBrowse:
		return NamespaceBrowse
	}
	return 0
}

const (
	TagUnknown Tag = iota

	// player status

	TagPlayerName
	TagPlayerConnected
	TagPlayerIP
	TagPlayerNeedsUpgrade
	TagPlayerIsUpgrading
	TagRescan
	TagError
	TagRemote
	TagCurrentTitle
	TagSleep
	TagSleepIn
	TagSyncMaster
	TagSyncSlaves
	TagPower
	TagSignalStrength
	TagMode
	TagTime
	TagRate
	TagDuration
	TagCanSeek
	TagMixerVolume
	TagMixerTreble
	TagMixerBass
	TagMixerPitch
	TagPlaylistRepeat
	TagPlaylistShuffle
	TagPlaylistMode
	TagSeqNo
	TagPlaylistID
	TagPlaylistName
	TagPlaylistCurIndex
	TagPlaylistTimestamp
	TagPlaylistModified
	TagPlaylistTracks

	// playlist entries

	TagPlaylistIndex
	TagTrackID
	TagTrackTitle
	TagTrackArtist
	TagTrackGenre
	TagTrackDuration
	TagTrackCoverID
	TagTrackCoverArt
	TagTrackArtworkTrackID
	TagTrackArtworkURL
	TagTrackBitrate
	TagTrackAlbum
	TagTrackYear
	TagTrackURL
	TagTrackRemote
	TagTrackRemoteTitle
	TagTrackContentType
	TagTrackLyrics

	// range query results

	TagItemCount
	TagItemID
	TagItemGenre
	TagItemGenreID
	TagItemArtist
	TagItemArtistID
	TagItemAlbum
	TagItemAlbumID
	TagItemYear
	TagItemTitle
	TagItemTrackID
	TagItemPlaylist
	TagItemPlaylistID
	TagItemName
	TagItemType
	TagItemIcon
	TagItemImage
	TagItemCmd
	TagItemWeight
	TagItemSort
	TagItemIsAudio
	TagItemHasItems
	TagItemURL

	tagCount
)

type tagEntry struct {
	tag  Tag
	name string
	ns   Namespace
}

// tagTable is ordered: a name found in several namespaces resolves to its
// first row when looked up without a context.
var tagTable = []tagEntry{
	{TagPlayerName, "player_name", NamespaceStatus},
	{TagPlayerConnected, "player_connected", NamespaceStatus},
	{TagPlayerIP, "player_ip", NamespaceStatus},
	{TagPlayerNeedsUpgrade, "player_needs_upgrade", NamespaceStatus},
	{TagPlayerIsUpgrading, "player_is_upgrading", NamespaceStatus},
	{TagRescan, "rescan", NamespaceStatus},
	{TagError, "error", NamespaceStatus},
	{TagRemote, "remote", NamespaceStatus},
	{TagCurrentTitle, "current_title", NamespaceStatus},
	{TagSleep, "sleep", NamespaceStatus},
	{TagSleepIn, "will_sleep_in", NamespaceStatus},
	{TagSyncMaster, "sync_master", NamespaceStatus},
	{TagSyncSlaves, "sync_slaves", NamespaceStatus},
	{TagPower, "power", NamespaceStatus},
	{TagSignalStrength, "signalstrength", NamespaceStatus},
	{TagMode, "mode", NamespaceStatus},
	{TagTime, "time", NamespaceStatus},
	{TagRate, "rate", NamespaceStatus},
	{TagDuration, "duration", NamespaceStatus},
	{TagCanSeek, "can_seek", NamespaceStatus},
	{TagMixerVolume, "mixer volume", NamespaceStatus},
	{TagMixerVolume, "volume", NamespaceStatus},
	{TagMixerTreble, "mixer treble", NamespaceStatus},
	{TagMixerBass, "mixer bass", NamespaceStatus},
	{TagMixerPitch, "mixer pitch", NamespaceStatus},
	{TagPlaylistRepeat, "playlist repeat", NamespaceStatus},
	{TagPlaylistShuffle, "playlist shuffle", NamespaceStatus},
	{TagPlaylistMode, "playlist mode", NamespaceStatus},
	{TagSeqNo, "seq_no", NamespaceStatus},
	{TagPlaylistID, "playlist_id", NamespaceStatus},
	{TagPlaylistName, "playlist_name", NamespaceStatus},
	{TagPlaylistCurIndex, "playlist_cur_index", NamespaceStatus},
	{TagPlaylistTimestamp, "playlist_timestamp", NamespaceStatus},
	{TagPlaylistModified, "playlist_modified", NamespaceStatus},
	{TagPlaylistTracks, "playlist_tracks", NamespaceStatus},

	{TagPlaylistIndex, "playlist index", NamespaceTrack},
	{TagTrackID, "id", NamespaceTrack},
	{TagTrackTitle, "title", NamespaceTrack},
	{TagTrackArtist, "artist", NamespaceTrack},
	{TagTrackGenre, "genre", NamespaceTrack},
	{TagTrackDuration, "duration", NamespaceTrack},
	{TagTrackCoverID, "coverid", NamespaceTrack},
	{TagTrackCoverArt, "coverart", NamespaceTrack},
	{TagTrackArtworkTrackID, "artwork_track_id", NamespaceTrack},
	{TagTrackArtworkURL, "artwork_url", NamespaceTrack},
	{TagTrackBitrate, "bitrate", NamespaceTrack},
	{TagTrackAlbum, "album", NamespaceTrack},
	{TagTrackYear, "year", NamespaceTrack},
	{TagTrackURL, "url", NamespaceTrack},
	{TagTrackRemote, "remote", NamespaceTrack},
	{TagTrackRemoteTitle, "remote_title", NamespaceTrack},
	{TagTrackContentType, "type", NamespaceTrack},
	{TagTrackLyrics, "lyrics", NamespaceTrack},

	{TagItemCount, "count", NamespaceBrowse},
	{TagItemID, "id", NamespaceBrowse},
	{TagItemGenre, "genre", NamespaceBrowse},
	{TagItemGenreID, "genre_id", NamespaceBrowse},
	{TagItemArtist, "artist", NamespaceBrowse},
	{TagItemArtistID, "artist_id", NamespaceBrowse},
	{TagItemAlbum, "album", NamespaceBrowse},
	{TagItemAlbumID, "album_id", NamespaceBrowse},
	{TagItemYear, "year", NamespaceBrowse},
	{TagItemTitle, "title", NamespaceBrowse},
	{TagItemTrackID, "track_id", NamespaceBrowse},
	{TagItemPlaylist, "playlist", NamespaceBrowse},
	{TagItemPlaylistID, "playlist_id", NamespaceBrowse},
	{TagItemName, "name", NamespaceBrowse},
	{TagItemType, "type", NamespaceBrowse},
	{TagItemIcon, "icon", NamespaceBrowse},
	{TagItemImage, "image", NamespaceBrowse},
	{TagItemCmd, "cmd", NamespaceBrowse},
	{TagItemWeight, "weight", NamespaceBrowse},
	{TagItemSort, "sort", NamespaceBrowse},
	{TagItemIsAudio, "isaudio", NamespaceBrowse},
	{TagItemHasItems, "hasitems", NamespaceBrowse},
	{TagItemURL, "url", NamespaceBrowse},
}

var (
	tagsByName      = map[string]Tag{}
	tagsByNamespace = map[Namespace]map[string]Tag{}
	tagNames        = map[Tag]string{}
	tagNamespaces   = map[Tag]Namespace{}
)

func init() {
	for _, e := range tagTable {
		if _, ok := tagsByName[e.name]; !ok {
			tagsByName[e.name] = e.tag
		}
		if tagsByNamespace[e.ns] == nil {
			tagsByNamespace[e.ns] = map[string]Tag{}
		}
		tagsByNamespace[e.ns][e.name] = e.tag
		if _, ok := tagNames[e.tag]; !ok {
			tagNames[e.tag] = e.name
			tagNamespaces[e.tag] = e.ns
		}
	}
}

// LookupTag maps a tag name to a Tag. The namespace of ctx is searched first,
// then the whole table by literal name.
func LookupTag(name string, ctx Context) Tag {
	if name == "" {
		return TagUnknown
	}
	if ns := ctx.namespace(); ns != 0 {
		if t, ok := tagsByNamespace[ns][name]; ok {
			return t
		}
	}
	if t, ok := tagsByName[name]; ok {
		return t
	}
	return TagUnknown
}

// IsValid reports whether t is a known tag.
func (t Tag) IsValid() bool {
	return t > TagUnknown && t < tagCount
}

// Namespace returns the namespace t belongs to.
func (t Tag) Namespace() Namespace {
	return tagNamespaces[t]
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "<unknown>"
}
