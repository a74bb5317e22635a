// Package api provides the HTTP API for observing and steering a world shard.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/pantheon/internal/broadcast"
	"github.com/talgya/pantheon/internal/engine"
	"github.com/talgya/pantheon/internal/eventlog"
	"github.com/talgya/pantheon/internal/replay"
	"github.com/talgya/pantheon/internal/world"
)

const maxStreamConns = 64

// Server serves the world state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Store    eventlog.Store
	Bus      *broadcast.Bus
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	Limiter  *RateLimiter

	streamConns atomic.Int32
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/factions", s.handleFactions)
	mux.HandleFunc("GET /api/v1/territories", s.handleTerritories)
	mux.HandleFunc("GET /api/v1/sieges", s.handleSieges)
	mux.HandleFunc("GET /api/v1/relations", s.handleRelations)
	mux.HandleFunc("GET /api/v1/replay", s.handleReplay)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Admin endpoint (POST, bearer token, rate limited per IP).
	command := s.adminOnly(s.handleCommand)
	if s.Limiter != nil {
		command = RateLimitMiddleware(s.Limiter, command)
	}
	mux.HandleFunc("POST /api/v1/command", command)

	return corsMiddleware(mux)
}

// Start begins serving on addr in a goroutine. The returned server is used
// for shutdown.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no PANTHEON_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	season := s.Sim.Season()
	status := map[string]any{
		"shard":        s.Sim.Shard(),
		"tick":         s.Sim.Tick(),
		"season":       season.Number,
		"season_start": season.StartTick,
	}
	if s.Eng != nil {
		status["running"] = s.Eng.Running()
	}
	s.Sim.View(func(st *world.State) {
		active := 0
		for _, sg := range st.Sieges {
			if sg.Active() {
				active++
			}
		}
		status["territories"] = len(st.Territories)
		status["factions"] = len(st.Factions)
		status["active_sieges"] = active
		status["relations"] = len(st.Relations)
	})
	writeJSON(w, status)
}

func (s *Server) handleFactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Snapshot().SortedFactions())
}

func (s *Server) handleTerritories(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Snapshot()
	owner := r.URL.Query().Get("owner")
	out := make([]*world.Territory, 0, len(st.Territories))
	for _, t := range st.SortedTerritories() {
		if owner == "" || t.OwnerID() == owner {
			out = append(out, t)
		}
	}
	writeJSON(w, out)
}

// handleSieges lists sieges; ?active=true limits the list to running ones.
func (s *Server) handleSieges(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	st := s.Sim.Snapshot()
	out := make([]*world.Siege, 0, len(st.Sieges))
	for _, sg := range st.SortedSieges() {
		if !activeOnly || sg.Active() {
			out = append(out, sg)
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Snapshot().SortedRelations())
}

// handleReplay reconstructs the shard at ?tick= from the event store.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		http.Error(w, "replay unavailable", http.StatusServiceUnavailable)
		return
	}
	tick, err := strconv.ParseUint(r.URL.Query().Get("tick"), 10, 64)
	if err != nil {
		http.Error(w, "tick must be a non-negative integer", http.StatusBadRequest)
		return
	}
	if now := s.Sim.Tick(); tick > now {
		http.Error(w, "tick "+strconv.FormatUint(tick, 10)+" is in the future (now "+strconv.FormatUint(now, 10)+")", http.StatusBadRequest)
		return
	}

	shard := s.Sim.Shard()
	events, err := replay.Load(r.Context(), s.Store, shard, 0, tick)
	if err != nil {
		slog.Error("replay load failed", "shard", shard, "tick", tick, "error", err)
		http.Error(w, "replay failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	st, skipped := replay.Rebuild(shard, events, tick)
	writeJSON(w, map[string]any{
		"tick":    tick,
		"events":  len(events),
		"skipped": skipped,
		"digest":  st.Digest(),
		"state":   st,
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}
