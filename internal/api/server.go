// Package api is the Read API: a gorilla/mux router serving liveness,
// metrics, and the three read operations over indexed data. It never
// writes; the Ingester Loop is the only writer.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/example/evm-indexer/internal/metrics"
)

// Server holds the Read API's dependencies and exposes an http.Handler.
type Server struct {
	reader  Reader
	metrics *metrics.Registry
	router  *mux.Router
}

// NewServer wires the routes. reg may be nil in tests that don't assert on metrics.
func NewServer(reader Reader, reg *metrics.Registry) *Server {
	s := &Server{reader: reader, metrics: reg}
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/logs", s.handleListLogs).Methods(http.MethodPost)
	r.HandleFunc("/block/{id}", s.handleGetBlock).Methods(http.MethodGet)
	r.HandleFunc("/transaction/{hash}", s.handleGetTransaction).Methods(http.MethodGet)
	r.Use(s.instrument)
	s.router = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// instrument records api_requests_total{route,status} and logs slow requests.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if tmpl, err := mux.CurrentRoute(r).GetPathTemplate(); err == nil {
			route = tmpl
		}
		if s.metrics != nil {
			s.metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status/100)+"xx").Inc()
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			gethlog.Warn("slow api request", "method", r.Method, "path", r.URL.Path, "elapsed", elapsed)
		}
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
