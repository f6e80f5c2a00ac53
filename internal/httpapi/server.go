// Package httpapi is the REST shell (§6 External interfaces): routing,
// request decoding, response encoding, and header consumption live here so
// the engine package stays transport-agnostic.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/elementstore/objstore/internal/objstore"
	"github.com/elementstore/objstore/internal/platform/logging"
	"github.com/elementstore/objstore/internal/platform/metrics"
	"github.com/elementstore/objstore/internal/platform/ratelimit"
)

// Server composes the engine with the genesis/export ancillary services and
// exposes the full REST surface of §6.
type Server struct {
	engine      *objstore.Engine
	genesis     *objstore.Genesis
	genesisRoot string
	exports     *objstore.ExportStore
	log         *logging.Logger
	metrics     *metrics.Metrics
	limiter     *ratelimit.Limiter
	version     string
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithGenesis wires genesis loader control endpoints (POST /genesis, GET
// /genesis, GET /genesis/data) at root.
func WithGenesis(g *objstore.Genesis, root string) Option {
	return func(s *Server) { s.genesis = g; s.genesisRoot = root }
}

// WithExports wires the export bundle endpoints.
func WithExports(e *objstore.ExportStore) Option {
	return func(s *Server) { s.exports = e }
}

// WithMetrics attaches request instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRateLimit attaches a request rate limiter.
func WithRateLimit(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithVersion sets the version string reported by /health and /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer returns a Server wrapping engine.
func NewServer(engine *objstore.Engine, log *logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.NewFromEnv("objstored")
	}
	s := &Server{engine: engine, log: log, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the full mux.Router per §6.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware, deadlineMiddleware, tracingMiddleware(s.log))
	if s.metrics != nil {
		r.Use(s.metrics.InstrumentHandler)
	}
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/class", s.handleListClasses).Methods(http.MethodGet)
	r.HandleFunc("/class", s.handleUpsertClass).Methods(http.MethodPost)
	r.HandleFunc("/class/{id}", s.handleGetClass).Methods(http.MethodGet)
	r.HandleFunc("/class/{id}/props", s.handleGetClassProps).Methods(http.MethodGet)
	r.HandleFunc("/class/{id}", s.handleDeleteClass).Methods(http.MethodDelete)

	r.HandleFunc("/store/{class}", s.handleListObjects).Methods(http.MethodGet)
	r.HandleFunc("/store/{class}", s.handleCreateObject).Methods(http.MethodPost)
	r.HandleFunc("/store/{class}/{id}", s.handleGetObject).Methods(http.MethodGet)
	r.HandleFunc("/store/{class}/{id}", s.handleUpdateObject).Methods(http.MethodPut)
	r.HandleFunc("/store/{class}/{id}", s.handleDeleteObject).Methods(http.MethodDelete)
	r.HandleFunc("/store/{class}/{id}/{prop}", s.handleGetField).Methods(http.MethodGet)
	r.HandleFunc("/store/{class}/{id}/{prop}", s.handleSetField).Methods(http.MethodPut)

	r.HandleFunc("/find/{id}", s.handleFind).Methods(http.MethodGet)
	r.HandleFunc("/query/{class}", s.handleQuery).Methods(http.MethodGet)

	r.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)

	r.HandleFunc("/genesis", s.handleGenesisRun).Methods(http.MethodPost)
	r.HandleFunc("/genesis", s.handleGenesisInfo).Methods(http.MethodGet)
	r.HandleFunc("/genesis/data", s.handleGenesisData).Methods(http.MethodGet)

	r.HandleFunc("/export", s.handleExportCreate).Methods(http.MethodPost)
	r.HandleFunc("/exports", s.handleExportList).Methods(http.MethodGet)
	r.HandleFunc("/export/{hash}", s.handleExportGet).Methods(http.MethodGet)
	r.HandleFunc("/export/{hash}", s.handleExportDelete).Methods(http.MethodDelete)

	r.HandleFunc("/runtests", s.handleRunTests).Methods(http.MethodPost)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "objstored", "version": s.version})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "objstored",
		"version": s.version,
		"endpoints": []string{
			"GET /health", "GET /info",
			"GET /class", "GET /class/{id}", "GET /class/{id}/props", "POST /class", "DELETE /class/{id}",
			"GET /store/{class}", "GET /store/{class}/{id}", "GET /find/{id}",
			"GET /store/{class}/{id}/{prop}", "PUT /store/{class}/{id}/{prop}",
			"POST /store/{class}", "PUT /store/{class}/{id}", "DELETE /store/{class}/{id}",
			"GET /query/{class}", "POST /reset",
			"POST /genesis", "GET /genesis", "GET /genesis/data",
			"POST /export", "GET /exports", "GET /export/{hash}", "DELETE /export/{hash}",
			"POST /runtests",
		},
	})
}
