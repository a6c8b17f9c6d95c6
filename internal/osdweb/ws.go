package osdweb

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// Reply answers a command sent over the websocket.
type Reply struct {
	Command  string `json:"command"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// handleWS pushes every state document to the client and accepts commands
// as JSON text frames.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Error("Websocket accept failed", slog.String("stack", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, initial := s.subscribe()
	defer s.unsubscribe(updates)

	go s.readCommands(ctx, cancel, conn)

	if err := conn.Write(ctx, websocket.MessageText, initial); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case data, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				s.log.Debug("Websocket write failed", slog.String("stack", err.Error()))
				return
			}
		}
	}
}

func (s *Server) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.log.Debug("Websocket read failed", slog.String("stack", err.Error()))
			}
			return
		}

		var cmd Command
		reply := Reply{Response: "ok"}
		if err := json.Unmarshal(msg, &cmd); err != nil {
			reply.Response = "error"
			reply.Error = "invalid json"
		} else {
			reply.Command = cmd.Name
			if err := s.dispatch(cmd); err != nil {
				reply.Response = "error"
				reply.Error = err.Error()
			}
		}

		data, _ := json.Marshal(reply)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}
