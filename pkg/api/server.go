package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/grantor/pkg/catalog"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/orchestrator"
)

// TemplateCatalog is the read surface of the permission template catalog
// the server needs for GET /api/v1/templates.
type TemplateCatalog interface {
	Names() []string
	Get(name string) (catalog.Template, bool)
}

// Server holds the API handlers and their route table.
type Server struct {
	orch      *orchestrator.Orchestrator
	templates TemplateCatalog
	logger    *observability.Logger
	metrics   *observability.Metrics
	router    *mux.Router
}

// NewServer creates a new API server. metrics may be nil; request metrics
// are skipped in that case.
func NewServer(orch *orchestrator.Orchestrator, templates TemplateCatalog, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		orch:      orch,
		templates: templates,
		logger:    logger,
		metrics:   metrics,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Grant routes
	s.handle("POST", "/api/v1/grants", s.createGrant)
	s.handle("GET", "/api/v1/grants", s.listGrants)
	s.handle("GET", "/api/v1/grants/{name}/validate", s.validateGrant)

	// Assignment routes
	s.handle("POST", "/api/v1/assignments", s.createAssignment)
	s.handle("POST", "/api/v1/assignments/bulk", s.bulkAssign)

	// Operation routes
	s.handle("GET", "/api/v1/operations", s.listOperations)
	s.handle("GET", "/api/v1/operations/{id}", s.getOperation)
	s.handle("POST", "/api/v1/operations/{id}/rollback", s.rollbackOperation)

	// Template catalog routes
	s.handle("GET", "/api/v1/templates", s.listTemplates)

	// Liveness probe for load balancers; detailed readiness lives on the
	// health port.
	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handle registers one route, wrapped with request metrics when available.
// The route template, not the concrete path, is used as the metric label to
// keep cardinality bounded.
func (s *Server) handle(method, path string, fn http.HandlerFunc) {
	var handler http.Handler = fn
	if s.metrics != nil {
		handler = s.metrics.InstrumentHandler(path, handler)
	}
	s.router.Handle(path, handler).Methods(method)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router so callers can mount middleware or
// additional routes.
func (s *Server) Router() *mux.Router {
	return s.router
}
