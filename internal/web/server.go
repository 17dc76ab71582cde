package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/yieldpilot/vrm/internal/logger"
	"github.com/yieldpilot/vrm/internal/orchestrator"
	"github.com/yieldpilot/vrm/internal/state"
	"github.com/yieldpilot/vrm/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// JobStore is the read surface the operator API needs from persistence.
type JobStore interface {
	GetJob(jobID string) (types.RebalanceJob, error)
	ListRecentJobs(limit int) ([]types.RebalanceJob, error)
	ListRunReports(limit int) ([]types.RunReport, error)
}

// Rankings produces the current ranked vault universe for a token and chain.
type Rankings interface {
	VaultRankings(tokenSymbol string, chainID int64) ([]types.EnrichedVaultRecord, error)
}

// WebServer exposes the operator inspection API: job and run history, vault
// rankings, and health.
type WebServer struct {
	router   *mux.Router
	port     string
	store    JobStore
	rankings Rankings
	orch     *orchestrator.Orchestrator
	started  time.Time
}

// NewWebServer creates a new web server instance.
func NewWebServer(port string, store JobStore, rankings Rankings, orch *orchestrator.Orchestrator) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:   mux.NewRouter(),
		port:     port,
		store:    store,
		rankings: rankings,
		orch:     orch,
		started:  time.Now().UTC(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/jobs", ws.handleGetJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", ws.handleGetJob).Methods("GET")
	api.HandleFunc("/runs", ws.handleGetRuns).Methods("GET")
	api.HandleFunc("/vaults/rankings", ws.handleGetRankings).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Server builds the configured http.Server. The caller owns its lifecycle so
// shutdown can be coordinated with the scheduler.
func (ws *WebServer) Server() *http.Server {
	webLogger.Info().Str("port", ws.port).Msg("Web server configured")

	return &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// handleHealth returns server health and the orchestrator run status.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "vrm-vault-rebalance-manager",
			"version": "1.0.0",
		},
		"orchestrator": map[string]interface{}{
			"run_in_progress": ws.orch != nil && ws.orch.Running(),
		},
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetJobs returns recent rebalance jobs, newest first.
func (ws *WebServer) handleGetJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)

	jobs, err := ws.store.ListRecentJobs(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent jobs")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve jobs")
		return
	}

	response := map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
		"limit": limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetJob returns a specific rebalance job by ID.
func (ws *WebServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idStr := vars["id"]

	if _, err := uuid.Parse(idStr); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := ws.store.GetJob(idStr)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Job not found")
			return
		}
		webLogger.Error().Err(err).Str("job_id", idStr).Msg("Failed to get job")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve job")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, job)
}

// handleGetRuns returns recent orchestration run reports.
func (ws *WebServer) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)

	reports, err := ws.store.ListRunReports(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get run reports")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve run reports")
		return
	}

	response := map[string]interface{}{
		"runs":  reports,
		"count": len(reports),
		"limit": limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRankings returns the current ranked vault universe for a token
// and chain.
func (ws *WebServer) handleGetRankings(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Missing token query parameter")
		return
	}
	chainID, err := strconv.ParseInt(r.URL.Query().Get("chain_id"), 10, 64)
	if err != nil || chainID <= 0 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid chain_id query parameter")
		return
	}

	ranked, err := ws.rankings.VaultRankings(token, chainID)
	if err != nil {
		webLogger.Error().Err(err).Str("token", token).Int64("chain_id", chainID).Msg("Failed to compute vault rankings")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compute rankings")
		return
	}

	response := map[string]interface{}{
		"token":    token,
		"chain_id": chainID,
		"vaults":   ranked,
		"count":    len(ranked),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func parseLimit(r *http.Request, fallback int) int {
	limit := fallback
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return limit
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
