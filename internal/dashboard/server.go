// Package dashboard serves the read-only status API and the live log feed
// the web dashboard tails.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

// Status is a point-in-time snapshot of the bot, supplied by the gateway
// layer.
type Status struct {
	Online    bool
	LatencyMS int
	Servers   int
	Users     int
}

// StatusFunc produces the current Status. It must be safe for concurrent
// use.
type StatusFunc func() Status

// Server exposes /api/health, /api/stats, /api/logs, /api/commands and the
// /ws/logs WebSocket feed.
type Server struct {
	addr     string
	sink     *Sink
	status   StatusFunc
	started  time.Time
	upgrader websocket.Upgrader
}

func NewServer(addr string, sink *Sink, status StatusFunc) *Server {
	return &Server{
		addr:    addr,
		sink:    sink,
		status:  status,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/commands", s.handleCommands)
	mux.HandleFunc("GET /ws/logs", s.handleLogSocket)

	srv := &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.status()
	state := "offline"
	if st.Online {
		state = "online"
	}
	writeJSON(w, map[string]any{
		"status":    state,
		"latency":   st.LatencyMS,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.status()
	up := time.Since(s.started)
	writeJSON(w, map[string]any{
		"servers": st.Servers,
		"users":   st.Users,
		"uptime": fmt.Sprintf("%dd %dh %dm",
			int(up.Hours())/24, int(up.Hours())%24, int(up.Minutes())%60),
		"uptime_raw": map[string]any{
			"days":          int(up.Hours()) / 24,
			"total_seconds": up.Seconds(),
		},
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		fmt.Sscanf(q, "%d", &limit)
	}
	writeJSON(w, map[string]any{
		"logs":  s.sink.Recent(limit),
		"total": s.sink.Len(),
	})
}

func (s *Server) handleCommands(w http.ResponseWriter, _ *http.Request) {
	type cmd struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	writeJSON(w, map[string]any{
		"commands": []cmd{
			{"/join", "Join your voice channel and open a music room"},
			{"/leave", "Leave voice and close the music room"},
			{"/play", "Queue a song by name or URL"},
			{"/queue", "Show the current queue"},
			{"/remove", "Remove a song from the queue"},
			{"/shuffle", "Shuffle the queue"},
			{"/loop", "Toggle queue looping"},
			{"/autoplay", "Toggle autoplay when the queue runs out"},
			{"/filter", "Set an audio filter (bass, nightcore, pitch)"},
			{"/sync_permissions", "Re-grant room access to the voice channel"},
			{"/voteskip", "Vote to skip the current song"},
			{"/pause", "Pause playback"},
			{"/resume", "Resume playback"},
			{"/skip", "Skip the current song"},
			{"/volume", "Set playback volume (0-200)"},
			{"/nowplaying", "Show the current song"},
			{"/playlist", "Save, load, list, or delete playlists"},
			{"/history", "Show recently played songs"},
		},
	})
}

func (s *Server) handleLogSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	feed, cancel := s.sink.Subscribe()
	defer cancel()

	if err := conn.WriteJSON(map[string]any{
		"type": "initial",
		"logs": s.sink.Recent(10),
	}); err != nil {
		return
	}

	// Reader: answer pings, detect close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(msg) == "ping" {
				_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
			}
		}
	}()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case e := <-feed:
			if err := conn.WriteJSON(map[string]any{"type": "new_log", "log": e}); err != nil {
				return
			}
		case <-keepalive.C:
			if err := conn.WriteJSON(map[string]any{"type": "keepalive"}); err != nil {
				return
			}
		}
	}
}
