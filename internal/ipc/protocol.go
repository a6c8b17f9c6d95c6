// Package ipc serves a local control socket: newline-delimited JSON requests
// and responses, plus pushed status updates for subscribed clients.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdPlay   CommandType = "play"
	CmdPause  CommandType = "pause"
	CmdResume CommandType = "resume"
	CmdStop   CommandType = "stop"
	CmdNext   CommandType = "next"
	CmdPrev   CommandType = "prev"
	CmdSeek   CommandType = "seek"
	CmdVolume CommandType = "volume"
	CmdMute   CommandType = "mute"
	CmdStatus CommandType = "status"

	// Playlist commands
	CmdGetQueue   CommandType = "getQueue"
	CmdQueueJump  CommandType = "queueJump"
	CmdSetRepeat  CommandType = "setRepeat"
	CmdSetShuffle CommandType = "setShuffle"
	CmdClear      CommandType = "clear"
	CmdRandom     CommandType = "random"
	CmdSave       CommandType = "save"
	CmdRestore    CommandType = "restore"

	// Library commands
	CmdBrowse     CommandType = "browse"
	CmdLoadItem   CommandType = "loadItem"
	CmdAppendItem CommandType = "appendItem"

	// Status push
	CmdSubscribe   CommandType = "subscribe"
	CmdUnsubscribe CommandType = "unsubscribe"
)

// PushStatus is the type of pushed status messages.
const PushStatus = "status"

// PushMessage represents a server-initiated message (no request needed)
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// TrackMetadata contains track metadata for display
type TrackMetadata struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Duration int64  `json:"duration,omitempty"` // milliseconds
	ArtURL   string `json:"artUrl,omitempty"`
	Remote   bool   `json:"remote,omitempty"`
}

// SeekRequest is the data for a seek command
type SeekRequest struct {
	Position int64 `json:"position"` // milliseconds
}

// VolumeRequest is the data for a volume command
type VolumeRequest struct {
	Level float64 `json:"level"` // 0.0 - 1.0
}

// StatusResponse is the response to a status command
type StatusResponse struct {
	Connected  bool           `json:"connected"`
	State      string         `json:"state"` // "playing", "paused", "stopped"
	Player     string         `json:"player,omitempty"`
	Position   int64          `json:"position"` // milliseconds
	Duration   int64          `json:"duration"`
	Volume     float64        `json:"volume"`
	Muted      bool           `json:"muted"`
	Metadata   *TrackMetadata `json:"metadata,omitempty"`
	QueueIndex int            `json:"queueIndex"`
	QueueSize  int            `json:"queueSize"`
	RepeatMode string         `json:"repeatMode"` // "off", "one", "all"
	Shuffle    bool           `json:"shuffle"`
}

// GetQueueResponse is the response to a getQueue command
type GetQueueResponse struct {
	Items      []TrackMetadata `json:"items"`
	Index      int             `json:"index"`
	Total      int             `json:"total"`
	RepeatMode string          `json:"repeatMode"`
	Shuffle    bool            `json:"shuffle"`
}

// SetRepeatRequest is the data for a setRepeat command
type SetRepeatRequest struct {
	Mode string `json:"mode"` // "off", "one", "all"
}

// SetShuffleRequest is the data for a setShuffle command
type SetShuffleRequest struct {
	Enabled bool `json:"enabled"`
}

// QueueJumpRequest is the data for a queueJump command
type QueueJumpRequest struct {
	Index int `json:"index"`
}

// BrowseRequest is the data for a browse command
type BrowseRequest struct {
	Level  lms.Level `json:"level"`
	Offset int       `json:"offset"`
	Count  int       `json:"count"`
}

// BrowseResponse is the response to a browse command
type BrowseResponse struct {
	Level     lms.Level        `json:"level"`
	Items     []lms.BrowseItem `json:"items"`
	Children  []*lms.Level     `json:"children"` // drill-down level per item, nil for leaves
	Total     int              `json:"total"`
	Truncated bool             `json:"truncated"`
}

// ItemRequest is the data for loadItem and appendItem
type ItemRequest struct {
	Level lms.Level      `json:"level"`
	Item  lms.BrowseItem `json:"item"`
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for streaming data
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	msg := PushMessage{
		Type: msgType,
		Data: rawData,
	}
	return json.Marshal(msg)
}

// RepeatModeName maps the player's repeat mode to its protocol name.
func RepeatModeName(repeat int) string {
	switch repeat {
	case 1:
		return "one"
	case 2:
		return "all"
	default:
		return "off"
	}
}

// RepeatModeValue is the inverse of RepeatModeName.
func RepeatModeValue(name string) (int, bool) {
	switch name {
	case "off":
		return 0, true
	case "one":
		return 1, true
	case "all":
		return 2, true
	}
	return 0, false
}
