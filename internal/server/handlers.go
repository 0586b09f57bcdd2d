package server

import (
	"context"
	"log"
	"net/http"
)

type healthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
}

// handleStatic reports total disk and memory, read fresh on every call.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.setCORS(w, r)

	totals, err := s.Totals.Totals(r.Context())
	if err != nil {
		log.Printf("static totals: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, totals)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Subscribers: s.Hub.Subscribers(),
	})
}

// handleWebSocket upgrades the connection and runs it until the client
// goes away or the server shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}

	ctx := r.Context()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sub := newWSSubscriber(conn, s.Config.SendBuffer)
	go sub.writePump(s.Config.PingInterval)

	defer func() {
		s.Hub.HandleDisconnect(sub)
		sub.close()
	}()

	s.Hub.HandleConnect(ctx, sub)
	sub.readPump(s.Config.PingInterval, func(data []byte) {
		s.Hub.HandleMessage(ctx, sub, data)
	})
}
