package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dexponent/farmd/internal/config"
	"github.com/dexponent/farmd/internal/logger"
	"github.com/dexponent/farmd/internal/metrics"
	"github.com/dexponent/farmd/internal/protocol"
	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// History serves persisted harvester output. state.PostgresStore implements it.
type History interface {
	RecentSnapshots(ctx context.Context, farmID types.FarmID, limit int) ([]types.FarmSnapshot, error)
	RecentReceipts(ctx context.Context, farmID types.FarmID, limit int) ([]types.HarvestReceipt, error)
	YieldSummary(ctx context.Context, farmID types.FarmID) (types.FarmYieldSummary, error)
	Healthy() error
}

// CycleReporter exposes the harvester's latest cycle.
type CycleReporter interface {
	LastCycle() (types.CycleSummary, bool)
}

// Config wires the server. History, Cycles and Metrics are optional; routes that need a
// missing dependency answer 503.
type Config struct {
	Port    string
	Core    *protocol.Core
	History History
	Cycles  CycleReporter
	Metrics *metrics.Metrics
}

// WebServer serves the read-only farm API.
type WebServer struct {
	router  *mux.Router
	port    string
	core    *protocol.Core
	history History
	cycles  CycleReporter
	metrics *metrics.Metrics
	started time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		core:    cfg.Core,
		history: cfg.History,
		cycles:  cfg.Cycles,
		metrics: cfg.Metrics,
		started: time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.metrics != nil {
		ws.router.Handle("/metrics", ws.metrics.Handler()).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/farms", ws.handleGetFarms).Methods("GET")
	api.HandleFunc("/farms/{id:[0-9]+}", ws.handleGetFarm).Methods("GET")
	api.HandleFunc("/farms/{id:[0-9]+}/positions", ws.handleGetPositions).Methods("GET")
	api.HandleFunc("/farms/{id:[0-9]+}/positions/{address}", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/farms/{id:[0-9]+}/snapshots", ws.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/farms/{id:[0-9]+}/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/farms/{id:[0-9]+}/yield", ws.handleGetYieldSummary).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		webLogger.Info().Msg("Shutting down web server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleHealth reports process, database and harvester status.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false

	dbStatus := "disabled"
	if ws.history != nil {
		dbStatus = "healthy"
		if err := ws.history.Healthy(); err != nil {
			dbStatus = "unreachable"
			hasErrors = true
		}
	}

	cycleInfo := map[string]interface{}{
		"current_cycle":   0,
		"last_cycle_time": nil,
		"failed_farms":    0,
	}
	if ws.cycles != nil {
		if last, ok := ws.cycles.LastCycle(); ok {
			cycleInfo = map[string]interface{}{
				"current_cycle":   last.CycleNumber,
				"last_cycle_time": last.StartedAt,
				"failed_farms":    last.Failed,
			}
			if last.Failed > 0 {
				hasErrors = true
			}
		}
	}

	farms := 0
	if ws.core != nil {
		farms = len(ws.core.FarmIDs())
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"farmd_status": map[string]interface{}{
			"database":   dbStatus,
			"farms":      farms,
			"cycle_info": cycleInfo,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}
	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetFarms returns a live snapshot of every farm.
func (ws *WebServer) handleGetFarms(w http.ResponseWriter, r *http.Request) {
	if ws.core == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Protocol not loaded")
		return
	}

	farms := make([]types.FarmSnapshot, 0)
	for _, id := range ws.core.FarmIDs() {
		f, err := ws.core.Farm(id)
		if err != nil {
			continue
		}
		snap, err := f.Snapshot(r.Context())
		if err != nil {
			webLogger.Error().Err(err).Uint64("farm_id", uint64(id)).Msg("Failed to snapshot farm")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to snapshot farms")
			return
		}
		farms = append(farms, snap)
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"farms": farms,
		"count": len(farms),
	})
}

// handleGetFarm returns one farm's live snapshot and its policy.
func (ws *WebServer) handleGetFarm(w http.ResponseWriter, r *http.Request) {
	f, ok := ws.farmFromRequest(w, r)
	if !ok {
		return
	}
	snap, err := f.Snapshot(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Uint64("farm_id", uint64(f.ID())).Msg("Failed to snapshot farm")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to snapshot farm")
		return
	}
	st := f.State()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"farm":        snap,
		"params":      st.Params,
		"min_reserve": st.MinReserve,
		"pool":        st.Pool,
	})
}

// handleGetPositions lists every depositor position of a farm.
func (ws *WebServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	f, ok := ws.farmFromRequest(w, r)
	if !ok {
		return
	}
	positions := f.Positions()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

// handleGetPosition returns one holder's position with its pending yield and share value.
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	f, ok := ws.farmFromRequest(w, r)
	if !ok {
		return
	}
	holder, err := config.ParseAddress(mux.Vars(r)["address"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}
	pos, found := f.Position(holder)
	if !found {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}
	shares := f.ClaimToken().BalanceOf(holder)
	value, err := f.ConvertToAssets(shares)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to value shares")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"position":      pos,
		"shares":        shares,
		"share_value":   value,
		"pending_yield": f.PendingYield(holder),
	})
}

// handleGetSnapshots returns persisted snapshots of a farm.
func (ws *WebServer) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.historyRequest(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r)
	snaps, err := ws.history.RecentSnapshots(r.Context(), id, limit)
	if err != nil {
		webLogger.Error().Err(err).Uint64("farm_id", uint64(id)).Msg("Failed to get snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
		"limit":     limit,
	})
}

// handleGetReceipts returns persisted harvest receipts of a farm.
func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.historyRequest(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r)
	receipts, err := ws.history.RecentReceipts(r.Context(), id, limit)
	if err != nil {
		webLogger.Error().Err(err).Uint64("farm_id", uint64(id)).Msg("Failed to get receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	})
}

func (ws *WebServer) handleGetYieldSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.historyRequest(w, r)
	if !ok {
		return
	}
	summary, err := ws.history.YieldSummary(r.Context(), id)
	if err != nil {
		webLogger.Error().Err(err).Uint64("farm_id", uint64(id)).Msg("Failed to get yield summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve yield summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetLatestCycle returns the harvester's most recent cycle
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	if ws.cycles == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Harvester not running")
		return
	}
	last, ok := ws.cycles.LastCycle()
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, last)
}

func (ws *WebServer) farmFromRequest(w http.ResponseWriter, r *http.Request) (*vault.Farm, bool) {
	if ws.core == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Protocol not loaded")
		return nil, false
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid farm ID")
		return nil, false
	}
	f, err := ws.core.Farm(types.FarmID(id))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Farm not found")
		return nil, false
	}
	return f, true
}

func (ws *WebServer) historyRequest(w http.ResponseWriter, r *http.Request) (types.FarmID, bool) {
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "History store not configured")
		return 0, false
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid farm ID")
		return 0, false
	}
	return types.FarmID(id), true
}

func parseLimit(r *http.Request) int {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
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

		// Create a response writer wrapper to capture status code
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

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
