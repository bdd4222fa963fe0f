package router

import (
	"net/http"
)

// handleWebSocket upgrades GET /api/ws/timeline/{id} and registers the
// connection with the broadcaster. Only one subscriber per conversation
// is kept live; Register evicts whatever was there before.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "conversation_id", id, "error", err)
		return
	}

	tl, ok := s.events.Get(id)
	if !ok {
		tl = s.events.NewTimeline(id)
	}

	s.broadcaster.Register(id, conn, tl)
	defer s.broadcaster.Deregister(id, conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.broadcaster.HandleClientFrame(id, message)
	}
}
