package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"stratlab/internal/domain"
	"stratlab/internal/engine"
	"stratlab/internal/gather"
	"stratlab/internal/service"
	"stratlab/internal/store"
)

// maxBodyBytes caps POST bodies.
const maxBodyBytes = 1 << 20

// BacktestServer serves the backtest HTTP API.
type BacktestServer struct {
	svc     *service.Backtests
	version string
	log     *slog.Logger
}

// NewBacktestServer creates a new backtest HTTP server.
func NewBacktestServer(svc *service.Backtests, version string, log *slog.Logger) *BacktestServer {
	if log == nil {
		log = slog.Default()
	}
	return &BacktestServer{svc: svc, version: version, log: log.With("component", "httpapi")}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *BacktestServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("POST /api/backtests/run", s.handleRun)
	mux.HandleFunc("GET /api/backtests", s.handleList)
	mux.HandleFunc("GET /api/backtests/{id}", s.handleGet)
	mux.HandleFunc("GET /api/backtests/{id}/trades", s.handleTrades)
	mux.HandleFunc("GET /api/backtests/{id}/equity", s.handleEquity)
	mux.HandleFunc("GET /api/backtests/{id}/rejections", s.handleRejections)
	mux.HandleFunc("GET /api/backtests/{id}/explain/{tradeID}", s.handleExplain)
}

// Handler returns an http.Handler with CORS middleware.
func (s *BacktestServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return CORS(mux)
}

// CORS allows any origin to call the API.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorJSON{Error: msg})
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownStrategy),
		errors.Is(err, domain.ErrInvalidRisk),
		errors.Is(err, domain.ErrInvalidParams),
		errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, gather.ErrNoData), errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *BacktestServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func (s *BacktestServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthJSON{Status: "ok", Version: s.version})
}

func (s *BacktestServer) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StrategiesJSON{Strategies: s.svc.Strategies()})
}

func (s *BacktestServer) handleRun(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	run, _, err := s.svc.Execute(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *BacktestServer) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = n
	}
	runs, err := s.svc.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *BacktestServer) handleGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *BacktestServer) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.svc.Trades(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *BacktestServer) handleEquity(w http.ResponseWriter, r *http.Request) {
	eq, err := s.svc.Equity(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

func (s *BacktestServer) handleRejections(w http.ResponseWriter, r *http.Request) {
	rej, err := s.svc.Rejections(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rej)
}

func (s *BacktestServer) handleExplain(w http.ResponseWriter, r *http.Request) {
	tradeID, err := strconv.ParseInt(r.PathValue("tradeID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id: "+r.PathValue("tradeID"))
		return
	}
	ex, err := s.svc.Explain(r.Context(), r.PathValue("id"), tradeID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}
