// Package webstatus implements the optional HTTP/JSON + websocket status
// endpoint (`evolvd status --serve`). It is a pure presentation layer: it
// reads the control socket and the on-disk event log, and never touches
// the supervisor directly.
package webstatus

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/evolvd/evolvd/internal/control"
	"github.com/evolvd/evolvd/internal/eventlog"
	"github.com/evolvd/evolvd/internal/protocol"
)

// Server serves a JSON status snapshot at GET / and a live event stream at
// GET /events (upgraded to a websocket).
type Server struct {
	SocketPath string
	EventsPath string
}

// Handler builds the HTTP handler.
func (s Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

func (s Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := control.Request(s.SocketPath, control.Request{Action: control.ActionStatus}, 2*time.Second)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	eventlog.Tail(ctx, s.EventsPath, true, func(evt protocol.AgentEvent) {
		data, err := json.Marshal(evt)
		if err != nil {
			return
		}
		writeCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		conn.Write(writeCtx, websocket.MessageText, data)
	})
}
