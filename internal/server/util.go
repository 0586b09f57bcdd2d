package server

import (
	"encoding/json"
	"net/http"
	"slices"
)

// respondJSON sends a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// allowedOrigin returns the value for Access-Control-Allow-Origin, or ""
// when origin is not allowed.
func allowedOrigin(allowed []string, origin string) string {
	if slices.Contains(allowed, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(allowed, origin) {
		return origin
	}
	return ""
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients do not send an Origin.
		return true
	}
	return allowedOrigin(s.Config.AllowedOrigins, origin) != ""
}

func (s *Server) setCORS(w http.ResponseWriter, r *http.Request) {
	if v := allowedOrigin(s.Config.AllowedOrigins, r.Header.Get("Origin")); v != "" {
		w.Header().Set("Access-Control-Allow-Origin", v)
		if v != "*" {
			w.Header().Add("Vary", "Origin")
		}
	}
}
