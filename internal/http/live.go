package http

import (
	"log/slog"
	"net/http"
	"time"

	"refdesk/internal/core"

	"github.com/gorilla/websocket"
)

const (
	liveWriteTimeout = 10 * time.Second
	livePingInterval = 30 * time.Second
)

// liveFrame is the wire shape of one board snapshot pushed over the socket.
type liveFrame struct {
	Day     string           `json:"day"`
	Counts  map[string]int64 `json:"counts"`
	Total   int64            `json:"total"`
	Version int64            `json:"version"`
}

func frameOf(t core.DailyTally) liveFrame {
	counts := make(map[string]int64, len(core.Categories()))
	for _, c := range core.Categories() {
		counts[c.ID] = t.Count(c.ID)
	}
	return liveFrame{
		Day:     t.Day.String(),
		Counts:  counts,
		Total:   t.Total(),
		Version: t.Version,
	}
}

// handleLive upgrades to a websocket and streams full-day snapshots for the
// requested day. The subscription is cancelled when either side goes away,
// so a closed tab stops receiving within one write cycle.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	day, err := dayParam(r)
	if err != nil {
		http.Error(w, "Invalid day, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	initial, err := s.svc.Day(r.Context(), day)
	if err != nil {
		slog.Error("Failed to load initial snapshot for live feed", "day", day, "error", err)
		initial = core.EmptyTally(day)
	}

	sub := s.hub.Subscribe(day, initial)
	defer sub.Cancel()

	slog.Info("Live subscriber attached", "day", day, "remote", conn.RemoteAddr().String())

	// Reader goroutine: we never expect client frames, but reading is how
	// the close handshake surfaces. A closed peer cancels the subscription.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(livePingInterval)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(frameOf(snap)); err != nil {
				slog.Debug("Live write failed, dropping subscriber", "day", day, "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
