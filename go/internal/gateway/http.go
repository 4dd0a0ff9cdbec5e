package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/brightwell/liveroom/go/internal/room"
)

// Handler builds the gateway's HTTP surface: the WebSocket endpoint, the
// read-only room and snapshot views, and the admin pause controls.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.cm.Stats())
	})
	mux.HandleFunc("GET /rooms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Rooms())
	})
	mux.HandleFunc("GET /rooms/{id}", s.handleRoomState)
	mux.HandleFunc("GET /rooms/{id}/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /rooms/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /rooms/{id}/resume", s.handleResume)
	mux.HandleFunc("GET /ws/rooms/{id}", s.handleWebSocket)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(mux)
}

// lookup resolves the {id} path segment to a registered scheduler.
func (s *Service) lookup(w http.ResponseWriter, r *http.Request) (*room.Scheduler, bool) {
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return nil, false
	}
	sched, ok := s.SchedulerFor(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return nil, false
	}
	return sched, true
}

func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	if _, ok := s.SchedulerFor(roomID); !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if _, err := s.cm.Upgrade(w, r, roomID); err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("websocket upgrade failed")
	}
}

func (s *Service) handleRoomState(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sched.Room())
}

func (s *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess, err := sched.Current()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"room":   sched.Room(),
			"active": false,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room":     sched.Room(),
		"active":   true,
		"snapshot": snap,
	})
}

func (s *Service) handlePause(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sched.Pause(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Service) handleResume(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sched.Resume(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
