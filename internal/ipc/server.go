package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
	"github.com/horchi/vdr-plugin-squeezebox/internal/loop"
)

const (
	pushTimeout     = time.Second
	defaultPageSize = 100
)

// Player is the part of the protocol client the control socket drives.
type Player interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	Stop(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PrevTrack(ctx context.Context) error
	Seek(ctx context.Context, seconds int) error
	SetVolume(ctx context.Context, volume int) error
	MuteToggle(ctx context.Context) error
	PlayTrack(ctx context.Context, index int) error
	SetRepeat(ctx context.Context, mode int) error
	SetShuffle(ctx context.Context, mode int) error
	Clear(ctx context.Context) error
	RandomTracks(ctx context.Context) error
	Save(ctx context.Context) error
	Resume(ctx context.Context) error
	QueryLevel(ctx context.Context, l lms.Level, offset, count int) (*lms.RangeResult, error)
	LoadItem(ctx context.Context, l lms.Level, item lms.BrowseItem) error
	AppendItem(ctx context.Context, l lms.Level, item lms.BrowseItem) error
	CoverURL(track lms.TrackInfo) string
}

// Loop queues commands and provides the current snapshot.
type Loop interface {
	Input(action func(context.Context) error) bool
	Last() loop.Snapshot
}

// Server handles IPC communication with clients
type Server struct {
	socketPath string
	player     Player
	loop       Loop
	log        *slog.Logger

	listener net.Listener
	mu       sync.Mutex
	clients  map[net.Conn]struct{}

	subsMu sync.RWMutex
	subs   map[net.Conn]bool // clients subscribed to status pushes
}

// NewServer creates a new IPC server
func NewServer(socketPath string, player Player, lp Loop, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		player:     player,
		loop:       lp,
		log:        logger.With(slog.String("component", "ipc")),
		clients:    make(map[net.Conn]struct{}),
		subs:       make(map[net.Conn]bool),
	}
}

// Start listens on the socket and serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions (user-only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.log.Info("Control socket listening", slog.String("path", s.socketPath))

	go s.acceptLoop(ctx)

	<-ctx.Done()

	s.mu.Lock()
	clientCount := len(s.clients)
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	listener.Close()
	os.RemoveAll(s.socketPath)

	s.log.Info("Control socket stopped", slog.Int("clients", clientCount))

	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("Accept failed", slog.String("stack", err.Error()))
			continue
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		clientCount := len(s.clients)
		s.mu.Unlock()

		s.log.Debug("Client connected", slog.Int("clients", clientCount))

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()
		s.subsMu.Lock()
		delete(s.subs, conn)
		s.subsMu.Unlock()
		s.log.Debug("Client disconnected", slog.Int("clients", clientCount))
	}()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Read line (newline-delimited JSON)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.log.Warn("Read failed", slog.String("stack", err.Error()))
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			s.log.Warn("Invalid request", slog.String("stack", err.Error()))
			s.sendError(conn, "invalid request format")
			continue
		}

		// status is polled; keep it out of the info log
		level := slog.LevelInfo
		if req.Cmd == CmdStatus || req.Cmd == CmdGetQueue {
			level = slog.LevelDebug
		}
		s.log.Log(ctx, level, "Command", slog.String("cmd", string(req.Cmd)))

		resp := s.handleRequest(ctx, conn, req)
		if !resp.Success {
			s.log.Warn("Command failed", slog.String("cmd", string(req.Cmd)), slog.String("error", resp.Error))
		}

		if err := s.sendResponse(conn, resp); err != nil {
			s.log.Warn("Send failed", slog.String("stack", err.Error()))
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, conn net.Conn, req *Request) *Response {
	switch req.Cmd {
	case CmdPlay:
		return s.queue(s.player.Play)
	case CmdPause:
		return s.queue(s.player.Pause)
	case CmdResume:
		return s.queue(s.player.Unpause)
	case CmdStop:
		return s.queue(s.player.Stop)
	case CmdNext:
		return s.queue(s.player.NextTrack)
	case CmdPrev:
		return s.queue(s.player.PrevTrack)
	case CmdMute:
		return s.queue(s.player.MuteToggle)
	case CmdClear:
		return s.queue(s.player.Clear)
	case CmdRandom:
		return s.queue(s.player.RandomTracks)
	case CmdSave:
		return s.queue(s.player.Save)
	case CmdRestore:
		return s.queue(s.player.Resume)
	case CmdSeek:
		return s.handleSeek(req)
	case CmdVolume:
		return s.handleVolume(req)
	case CmdStatus:
		return s.handleStatus()
	case CmdGetQueue:
		return s.handleGetQueue()
	case CmdQueueJump:
		return s.handleQueueJump(req)
	case CmdSetRepeat:
		return s.handleSetRepeat(req)
	case CmdSetShuffle:
		return s.handleSetShuffle(req)
	case CmdBrowse:
		return s.handleBrowse(ctx, req)
	case CmdLoadItem:
		return s.handleItem(req, false)
	case CmdAppendItem:
		return s.handleItem(req, true)
	case CmdSubscribe:
		return s.handleSubscribe(conn, true)
	case CmdUnsubscribe:
		return s.handleSubscribe(conn, false)
	default:
		return NewErrorResponse("unknown command")
	}
}

// queue runs action on the loop and answers with the current status.
func (s *Server) queue(action func(context.Context) error) *Response {
	if !s.loop.Input(action) {
		return NewErrorResponse("busy")
	}
	return s.handleStatus()
}

func decodeData(req *Request, v interface{}) error {
	if req.Data == nil {
		return errors.New("missing data")
	}
	return json.Unmarshal(req.Data, v)
}

func (s *Server) handleSeek(req *Request) *Response {
	var seekReq SeekRequest
	if err := decodeData(req, &seekReq); err != nil {
		return NewErrorResponse("invalid seek request")
	}
	if seekReq.Position < 0 {
		return NewErrorResponse("invalid position")
	}

	secs := int(seekReq.Position / 1000)
	return s.queue(func(ctx context.Context) error { return s.player.Seek(ctx, secs) })
}

func (s *Server) handleVolume(req *Request) *Response {
	var volReq VolumeRequest
	if err := decodeData(req, &volReq); err != nil {
		return NewErrorResponse("invalid volume request")
	}
	if volReq.Level < 0 || volReq.Level > 1 {
		return NewErrorResponse("volume must be between 0 and 1")
	}

	volume := int(volReq.Level*100 + 0.5)
	return s.queue(func(ctx context.Context) error { return s.player.SetVolume(ctx, volume) })
}

func (s *Server) trackMetadata(t lms.TrackInfo) TrackMetadata {
	return TrackMetadata{
		Index:    t.Index,
		ID:       t.ID,
		Title:    t.DisplayTitle(),
		Artist:   t.Artist,
		Album:    t.Album,
		Duration: int64(t.Duration * 1000),
		ArtURL:   s.player.CoverURL(t),
		Remote:   t.Remote,
	}
}

// StatusOf converts a loop snapshot to the status document.
func (s *Server) StatusOf(snap loop.Snapshot) StatusResponse {
	p := snap.Player

	state := "stopped"
	if snap.Connected {
		switch p.Mode {
		case "play":
			state = "playing"
		case "pause":
			state = "paused"
		}
	}

	status := StatusResponse{
		Connected:  snap.Connected,
		State:      state,
		Player:     p.PlayerName,
		Position:   int64(snap.Elapsed * 1000),
		Duration:   int64(p.Duration * 1000),
		Volume:     float64(p.Volume) / 100,
		Muted:      p.Muted,
		QueueIndex: p.PlaylistIndex,
		QueueSize:  p.TotalTracks,
		RepeatMode: RepeatModeName(p.Repeat),
		Shuffle:    p.Shuffle != 0,
	}
	if status.QueueSize == 0 {
		status.QueueSize = p.PlaylistCount
	}
	if snap.Current != nil {
		md := s.trackMetadata(*snap.Current)
		status.Metadata = &md
		if status.Duration == 0 {
			status.Duration = md.Duration
		}
	}
	return status
}

func (s *Server) handleStatus() *Response {
	resp, err := NewSuccessResponse(s.StatusOf(s.loop.Last()))
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleGetQueue() *Response {
	snap := s.loop.Last()

	items := make([]TrackMetadata, 0, len(snap.Tracks))
	for _, t := range snap.Tracks {
		items = append(items, s.trackMetadata(t))
	}

	total := snap.Player.TotalTracks
	if total == 0 {
		total = len(items)
	}

	resp, err := NewSuccessResponse(GetQueueResponse{
		Items:      items,
		Index:      snap.Player.PlaylistIndex,
		Total:      total,
		RepeatMode: RepeatModeName(snap.Player.Repeat),
		Shuffle:    snap.Player.Shuffle != 0,
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleQueueJump(req *Request) *Response {
	var jumpReq QueueJumpRequest
	if err := decodeData(req, &jumpReq); err != nil {
		return NewErrorResponse("invalid queue jump request")
	}

	snap := s.loop.Last()
	total := max(snap.Player.TotalTracks, len(snap.Tracks))
	if jumpReq.Index < 0 || (total > 0 && jumpReq.Index >= total) {
		return NewErrorResponse("invalid queue index")
	}

	index := jumpReq.Index
	return s.queue(func(ctx context.Context) error { return s.player.PlayTrack(ctx, index) })
}

func (s *Server) handleSetRepeat(req *Request) *Response {
	var repeatReq SetRepeatRequest
	if err := decodeData(req, &repeatReq); err != nil {
		return NewErrorResponse("invalid repeat request")
	}
	mode, ok := RepeatModeValue(repeatReq.Mode)
	if !ok {
		return NewErrorResponse("invalid repeat mode")
	}
	return s.queue(func(ctx context.Context) error { return s.player.SetRepeat(ctx, mode) })
}

func (s *Server) handleSetShuffle(req *Request) *Response {
	var shuffleReq SetShuffleRequest
	if err := decodeData(req, &shuffleReq); err != nil {
		return NewErrorResponse("invalid shuffle request")
	}
	mode := 0
	if shuffleReq.Enabled {
		mode = 1
	}
	return s.queue(func(ctx context.Context) error { return s.player.SetShuffle(ctx, mode) })
}

func (s *Server) handleBrowse(ctx context.Context, req *Request) *Response {
	var browseReq BrowseRequest
	if err := decodeData(req, &browseReq); err != nil {
		return NewErrorResponse("invalid browse request")
	}
	if _, ok := lms.LookupRangeQuery(browseReq.Level.Type); !ok {
		return NewErrorResponse("unknown browse type")
	}
	if browseReq.Count <= 0 {
		browseReq.Count = defaultPageSize
	}

	res, err := s.player.QueryLevel(ctx, browseReq.Level, max(0, browseReq.Offset), browseReq.Count)
	if err != nil {
		return NewErrorResponse(err.Error())
	}

	children := make([]*lms.Level, len(res.Items))
	for i, item := range res.Items {
		if child, ok := browseReq.Level.Drill(item); ok {
			children[i] = &child
		}
	}

	resp, err := NewSuccessResponse(BrowseResponse{
		Level:     browseReq.Level,
		Items:     res.Items,
		Children:  children,
		Total:     res.Total,
		Truncated: res.Truncated,
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleItem(req *Request, add bool) *Response {
	var itemReq ItemRequest
	if err := decodeData(req, &itemReq); err != nil {
		return NewErrorResponse("invalid item request")
	}
	if _, ok := lms.LookupRangeQuery(itemReq.Level.Type); !ok {
		return NewErrorResponse("unknown browse type")
	}

	return s.queue(func(ctx context.Context) error {
		if add {
			return s.player.AppendItem(ctx, itemReq.Level, itemReq.Item)
		}
		return s.player.LoadItem(ctx, itemReq.Level, itemReq.Item)
	})
}

func (s *Server) handleSubscribe(conn net.Conn, subscribe bool) *Response {
	s.subsMu.Lock()
	if subscribe {
		s.subs[conn] = true
	} else {
		delete(s.subs, conn)
	}
	count := len(s.subs)
	s.subsMu.Unlock()

	s.log.Debug("Status subscription changed", slog.Bool("subscribed", subscribe), slog.Int("subscribers", count))

	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": subscribe})
	return resp
}

func (s *Server) sendResponse(conn net.Conn, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

func (s *Server) sendError(conn net.Conn, msg string) {
	s.sendResponse(conn, NewErrorResponse(msg))
}

// Render pushes the status to subscribed clients. It makes the server a
// loop.Renderer.
func (s *Server) Render(snap loop.Snapshot) {
	s.subsMu.RLock()
	if len(s.subs) == 0 {
		s.subsMu.RUnlock()
		return
	}

	// Copy subscriber list to avoid holding lock during I/O
	subs := make([]net.Conn, 0, len(s.subs))
	for conn := range s.subs {
		subs = append(subs, conn)
	}
	s.subsMu.RUnlock()

	msg, err := NewPushMessage(PushStatus, s.StatusOf(snap))
	if err != nil {
		return
	}
	msg = append(msg, '\n')

	for _, conn := range subs {
		conn.SetWriteDeadline(time.Now().Add(pushTimeout))
		_, err := conn.Write(msg)
		conn.SetWriteDeadline(time.Time{})
		if err != nil {
			// Remove failed connection from subscribers
			s.subsMu.Lock()
			delete(s.subs, conn)
			s.subsMu.Unlock()
		}
	}
}
