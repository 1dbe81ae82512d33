// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/schelling/internal/engine"
	"github.com/talgya/schelling/internal/export"
	"github.com/talgya/schelling/internal/neighborhood"
	"github.com/talgya/schelling/internal/persistence"
)

const maxStreamConns = 8

// pingInterval is how often stream connections are pinged.
var pingInterval = 30 * time.Second

// Server serves the simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB
	Run      persistence.Run // Metadata used by snapshots
	Port     int
	AdminKey string   // Bearer token for POST endpoints. Empty = POST disabled.
	Origins  []string // Browser origins that get CORS headers

	// Active stream connection count (atomic).
	streamConns int32

	upgrader websocket.Upgrader
}

// Handler builds the API routes.
func (s *Server) Handler() http.Handler {
	gridLimiter := NewRateLimiter(120, time.Minute)
	chartLimiter := NewRateLimiter(20, time.Minute)

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Read-only stream, any origin may watch
		},
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/grid", RateLimitMiddleware(gridLimiter, s.handleGrid))
	mux.HandleFunc("/api/v1/chart", RateLimitMiddleware(chartLimiter, s.handleChart))
	mux.HandleFunc("/api/v1/unhappy", s.handleUnhappy)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)

	// Tick stream (websocket).
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(s.Origins, mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware echoes allowed origins back to browser dashboards and
// answers preflight requests. With no origins configured only same-origin
// pages can read the API.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken reports whether the request carries the admin key.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly guards POST on the control endpoints. GET passes through so
// the current speed stays observable.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no SCHELLING_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":       "schelling",
		"run_id":     s.Run.ID,
		"population": s.Run.Population,
		"seed":       s.Run.Seed,
		"simulation": s.Sim.Status(),
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
	}
	writeJSON(w, status)
}

// handleStatsHistory returns per-tick records. With ?run=<id> the history of
// a stored run is returned instead of the live one.
func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	var history engine.History
	if id := r.URL.Query().Get("run"); id != "" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		h, err := s.DB.LoadHistory(id)
		if err != nil {
			slog.Error("stats history query failed", "run", id, "error", err)
			http.Error(w, "history query failed", http.StatusInternalServerError)
			return
		}
		history = h
	} else {
		history = s.Sim.History()
	}

	fromTick, toTick, limit := 0, len(history), 1000
	if f := r.URL.Query().Get("from"); f != "" {
		if v, err := strconv.Atoi(f); err == nil && v >= 0 {
			fromTick = v
		}
	}
	if t := r.URL.Query().Get("to"); t != "" {
		if v, err := strconv.Atoi(t); err == nil {
			toTick = v
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 10000 {
			limit = v
		}
	}

	out := make(engine.History, 0, len(history))
	for _, rec := range history {
		if rec.Tick < fromTick || rec.Tick > toTick {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, rec)
	}
	writeJSON(w, out)
}

// handleGrid returns the type label of every lot, rows over x. With
// ?format=csv the grid is written in the export format.
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		var err error
		s.Sim.View(func(g *neighborhood.Grid) {
			err = export.WriteCSV(w, g)
		})
		if err != nil {
			slog.Error("grid export failed", "error", err)
		}
		return
	}

	labels := s.Sim.Labels()
	writeJSON(w, map[string]any{
		"dimension": len(labels),
		"rows":      labels,
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	history := s.Sim.History()
	if len(history) < 2 {
		http.Error(w, "not enough ticks to chart", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := export.WriteHistoryChart(w, history, s.Run.Population); err != nil {
		slog.Error("chart render failed", "error", err)
	}
}

func (s *Server) handleUnhappy(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	var infos []string
	s.Sim.View(func(g *neighborhood.Grid) {
		infos = engine.UnhappyInfo(g)
	})
	total := len(infos)
	if len(infos) > limit {
		infos = infos[:limit]
	}
	if infos == nil {
		infos = []string{}
	}
	writeJSON(w, map[string]any{
		"total":  total,
		"agents": infos,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	runs, err := s.DB.ListRuns(limit)
	if err != nil {
		slog.Error("runs query failed", "error", err)
		http.Error(w, "runs query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "no live engine", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	history := s.Sim.History()
	var err error
	s.Sim.View(func(g *neighborhood.Grid) {
		err = s.DB.SaveRun(s.Run, history, g)
	})
	if err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"run_id":  s.Run.ID,
		"ticks":   len(history),
		"message": "snapshot saved",
	})
}

// handleStream upgrades to a websocket and pushes every new tick record as
// JSON until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if atomic.AddInt32(&s.streamConns, 1) > maxStreamConns {
		atomic.AddInt32(&s.streamConns, -1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.streamConns, -1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	records, unsubscribe := s.Sim.Subscribe(64)
	defer unsubscribe()

	// Reads only detect the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.Sim.Status()); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return
			}
			if err := conn.WriteJSON(rec); err != nil {
				slog.Debug("stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
