package osdweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
)

// ErrUnknownCommand is returned for a command name not in the command table.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a player command addressed by name from the API.
type Command struct {
	Name  string `json:"command"`
	Value int    `json:"value,omitempty"`
}

var commands = map[string]func(ctx context.Context, p Player, value int) error{
	"play":    func(ctx context.Context, p Player, _ int) error { return p.Play(ctx) },
	"pause":   func(ctx context.Context, p Player, _ int) error { return p.PausePlay(ctx) },
	"stop":    func(ctx context.Context, p Player, _ int) error { return p.Stop(ctx) },
	"next":    func(ctx context.Context, p Player, _ int) error { return p.NextTrack(ctx) },
	"prev":    func(ctx context.Context, p Player, _ int) error { return p.PrevTrack(ctx) },
	"volup":   func(ctx context.Context, p Player, _ int) error { return p.VolumeUp(ctx) },
	"voldown": func(ctx context.Context, p Player, _ int) error { return p.VolumeDown(ctx) },
	"volume":  func(ctx context.Context, p Player, v int) error { return p.SetVolume(ctx, v) },
	"mute":    func(ctx context.Context, p Player, _ int) error { return p.MuteToggle(ctx) },
	"track":   func(ctx context.Context, p Player, v int) error { return p.PlayTrack(ctx, v) },
	"seek":    func(ctx context.Context, p Player, v int) error { return p.Scroll(ctx, v) },
	"shuffle": func(ctx context.Context, p Player, _ int) error { return p.Shuffle(ctx) },
	"repeat":  func(ctx context.Context, p Player, _ int) error { return p.Repeat(ctx) },
	"clear":   func(ctx context.Context, p Player, _ int) error { return p.Clear(ctx) },
	"random":  func(ctx context.Context, p Player, _ int) error { return p.RandomTracks(ctx) },
}

// dispatch queues cmd on the loop.
func (s *Server) dispatch(cmd Command) error {
	fn, ok := commands[strings.ToLower(cmd.Name)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
	if !s.input.Input(func(ctx context.Context) error { return fn(ctx, s.player, cmd.Value) }) {
		return errBusy
	}
	s.log.Debug("Queued command", slog.String("command", cmd.Name), slog.Int("value", cmd.Value))
	return nil
}

var errBusy = errors.New("command queue full")

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderJSONMessage(w http.ResponseWriter, status int, message string) {
	renderJSON(w, status, map[string]string{"message": message})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.Payload())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		renderJSONMessage(w, http.StatusMethodNotAllowed, "That method is invalid for this endpoint")
		return
	}

	q := r.URL.Query()
	cmd := Command{Name: q.Get("name")}
	for _, key := range []string{"value", "index"} {
		if raw := q.Get(key); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				renderJSONMessage(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s %q", key, raw))
				return
			}
			cmd.Value = v
		}
	}

	s.renderDispatch(w, cmd)
}

func (s *Server) renderDispatch(w http.ResponseWriter, cmd Command) {
	switch err := s.dispatch(cmd); {
	case errors.Is(err, ErrUnknownCommand):
		renderJSONMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errBusy):
		renderJSONMessage(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		renderJSONMessage(w, http.StatusInternalServerError, err.Error())
	default:
		renderJSONMessage(w, http.StatusAccepted, "queued")
	}
}

// BrowseResponse is one page of a browse level.
type BrowseResponse struct {
	Level  lms.Level `json:"level"`
	Offset int       `json:"offset"`
	*lms.RangeResult
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	level := lms.Level{
		Type:       lms.ParseRangeQueryType(q.Get("type")),
		SubCommand: q.Get("sub"),
	}
	if level.Type == lms.RangeUnknown {
		renderJSONMessage(w, http.StatusBadRequest, fmt.Sprintf("Unknown browse type %q", q.Get("type")))
		return
	}
	for _, f := range q["filter"] {
		key, value, ok := strings.Cut(f, ":")
		if !ok || key == "" {
			renderJSONMessage(w, http.StatusBadRequest, fmt.Sprintf("Invalid filter %q", f))
			return
		}
		level.Filters = level.Filters.With(key, value)
	}

	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		renderJSONMessage(w, http.StatusBadRequest, "Invalid offset")
		return
	}
	count, err := queryInt(q.Get("count"), s.cfg.PageSize)
	if err != nil || count <= 0 {
		renderJSONMessage(w, http.StatusBadRequest, "Invalid count")
		return
	}

	res, err := s.player.QueryLevel(r.Context(), level, offset, count)
	switch {
	case errors.Is(err, lms.ErrNoSubCommand):
		renderJSONMessage(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("Browse failed", slog.String("type", level.Type.String()), slog.String("stack", err.Error()))
		renderJSONMessage(w, http.StatusBadGateway, err.Error())
		return
	}

	renderJSON(w, http.StatusOK, BrowseResponse{Level: level, Offset: offset, RangeResult: res})
}

// LoadRequest plays or appends a browse item.
type LoadRequest struct {
	Level  lms.Level      `json:"level"`
	Item   lms.BrowseItem `json:"item"`
	Append bool           `json:"append"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		renderJSONMessage(w, http.StatusMethodNotAllowed, "That method is invalid for this endpoint")
		return
	}

	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderJSONMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, ok := lms.LookupRangeQuery(req.Level.Type); !ok {
		renderJSONMessage(w, http.StatusBadRequest, "Unknown browse type")
		return
	}

	ok := s.input.Input(func(ctx context.Context) error {
		if req.Append {
			return s.player.AppendItem(ctx, req.Level, req.Item)
		}
		return s.player.LoadItem(ctx, req.Level, req.Item)
	})
	if !ok {
		renderJSONMessage(w, http.StatusServiceUnavailable, errBusy.Error())
		return
	}
	renderJSONMessage(w, http.StatusAccepted, "queued")
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		renderJSONMessage(w, http.StatusNotFound, "History is disabled")
		return
	}

	limit, err := queryInt(r.URL.Query().Get("limit"), 0)
	if err != nil {
		renderJSONMessage(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("Failed to read history", slog.String("stack", err.Error()))
		renderJSONMessage(w, http.StatusInternalServerError, "Something went wrong reading the history")
		return
	}
	renderJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	if s.covers == nil {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	cover := s.state.Cover
	s.mu.Unlock()

	if cover == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", cover.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("ETag", strconv.Quote(strconv.FormatUint(cover.Key, 16)))
	w.Write(cover.Data)
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
