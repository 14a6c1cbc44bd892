// Package api exposes the REST surface: indicator calculation over
// historical windows, support/resistance analysis, candle pass-through,
// and service introspection.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"candleflow/internal/history"
	"candleflow/internal/logger"
	"candleflow/internal/marketdata/stream"
	"candleflow/internal/metrics"
)

// Options wires the server's collaborators. Source is required; the
// rest may be nil and their endpoints degrade gracefully.
type Options struct {
	Source       history.Source
	Manager      *stream.Manager
	SessionCount func() int
	Metrics      *metrics.Metrics
	CORSOrigins  []string
	WSHandler    http.Handler
	Log          *slog.Logger
}

// Server carries handler state behind the mux router.
type Server struct {
	src          history.Source
	mgr          *stream.Manager
	sessionCount func() int
	metrics      *metrics.Metrics
	log          *slog.Logger
	router       *mux.Router
}

// NewServer builds the router with all routes and middleware attached.
func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		src:          opts.Source,
		mgr:          opts.Manager,
		sessionCount: opts.SessionCount,
		metrics:      opts.Metrics,
		log:          log,
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware(opts.CORSOrigins))
	r.Use(s.accessLogMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/indicators/calculate", s.handleCalculate).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/indicators/multi-timeframe", s.handleMultiTimeframe).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/indicators/latest/{symbol}", s.handleLatest).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/indicators/available", s.handleAvailable).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/support-resistance/{symbol}", s.handleSupportResistance).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/support-resistance/{symbol}/pivots", s.handlePivots).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/support-resistance/{symbol}/nearest", s.handleNearest).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/candles", s.handleCandles).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/meta/timeframes", s.handleMetaTimeframes).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/meta/exchanges", s.handleMetaExchanges).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/meta/system-status", s.handleSystemStatus).Methods(http.MethodGet, http.MethodOptions)

	if opts.WSHandler != nil {
		r.Handle("/ws", opts.WSHandler)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, kindBadRequest, "no such route")
	})

	s.router = r
	return s
}

// Router returns the underlying handler for mounting.
func (s *Server) Router() http.Handler {
	return s.router
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// corsMiddleware applies the configured origin allowlist. "*" allows all.
func corsMiddleware(origins []string) mux.MiddlewareFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Microsecond).String(),
			"request_id", logger.RequestID(r.Context()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorBody{Message: msg, Kind: kind})
}

// decodeBody parses a JSON request body, rejecting unknown garbage early.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(dst)
}

// queryDefault reads a query parameter with a fallback.
func queryDefault(r *http.Request, key, fallback string) string {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		return v
	}
	return fallback
}
