// Package statusz serves the live state of a running suite over HTTP.
package statusz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psantana5/testsuite/pkg/logging"
)

// CaseStatus is the reported state of one finished case.
type CaseStatus struct {
	Name     string `json:"name"`
	Outcome  string `json:"outcome"`
	Duration string `json:"duration"`
	Failures int    `json:"failures,omitempty"`
}

// Status is the document served at /status.
type Status struct {
	RunID       string       `json:"run_id"`
	PID         int          `json:"pid"`
	Phase       string       `json:"phase"`
	StartedAt   time.Time    `json:"started_at"`
	CurrentCase string       `json:"current_case,omitempty"`
	Cases       []CaseStatus `json:"cases"`
}

// StatusFunc produces the current status on each request.
type StatusFunc func() Status

// Server exposes /healthz, /status, /cases/{name} and /metrics.
type Server struct {
	router *mux.Router
	status StatusFunc

	mu   sync.Mutex
	srv  *http.Server
	addr string
}

// New builds a server. gatherer may be nil to omit /metrics.
func New(status StatusFunc, gatherer prometheus.Gatherer) *Server {
	s := &Server{router: mux.NewRouter(), status: status}
	s.router.Use(logRequests)
	s.router.HandleFunc("/healthz", s.health).Methods("GET")
	s.router.HandleFunc("/status", s.getStatus).Methods("GET")
	s.router.HandleFunc("/cases/{name}", s.getCase).Methods("GET")
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background. Use port 0 to pick a
// free port; Addr reports the bound address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Default().Error("Status server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	logging.Default().Info("Status server listening", map[string]interface{}{"addr": s.addr})
	return nil
}

// Addr is the bound address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, c := range s.status().Cases {
		if c.Name == name {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	http.Error(w, fmt.Sprintf("case %s not found", name), http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
