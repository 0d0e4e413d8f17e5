// Package api exposes read-only JSON visibility into a running segment.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gobwas/glob"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ethane-platform/ethane/vnet"
)

// shutdownTimeout bounds how long in-flight requests may hold up exit.
const shutdownTimeout = 5 * time.Second

type options struct {
	log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		log: zap.NewNop().Sugar(),
	}
}

// Option configures the server.
type Option func(*options)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Server serves the inspection API for one segment.
type Server struct {
	cfg     *Config
	segment *vnet.Segment
	server  *http.Server
	log     *zap.SugaredLogger
}

// New creates a server over the given segment.
func New(cfg *Config, segment *vnet.Segment, options ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	s := &Server{
		cfg:     cfg,
		segment: segment,
		log:     opts.log,
	}

	router := mux.NewRouter()
	sub := router.PathPrefix("/api/v1").Subrouter()
	sub.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	sub.HandleFunc("/ports", s.handlePorts).Methods(http.MethodGet)
	sub.HandleFunc("/ports/{port}", s.handlePort).Methods(http.MethodGet)
	sub.HandleFunc("/ports/{port}/neighbours", s.handleNeighbours).Methods(http.MethodGet)
	sub.HandleFunc("/ports/{port}/pending", s.handlePending).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run serves the API until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Infow("running API server", "addr", s.cfg.Addr)

	errs := make(chan error, 1)
	go func() {
		errs <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down API server: %w", err)
		}
		return ctx.Err()
	case err := <-errs:
		return fmt.Errorf("failed to serve API: %w", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, StatusInfo{
		ClockMs: s.segment.Clock().Milliseconds(),
		Ports:   len(s.segment.Ports()),
	})
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	match, err := matchParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ports := []PortInfo{}
	for _, state := range s.segment.Ports() {
		if !match(state.Name) {
			continue
		}
		ports = append(ports, newPortInfo(state))
	}
	s.writeJSON(w, ports)
}

func (s *Server) handlePort(w http.ResponseWriter, r *http.Request) {
	state, ok := s.segment.Port(mux.Vars(r)["port"])
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no such port"))
		return
	}
	s.writeJSON(w, newPortInfo(state))
}

func (s *Server) handleNeighbours(w http.ResponseWriter, r *http.Request) {
	match, err := matchParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	state, ok := s.segment.Port(mux.Vars(r)["port"])
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no such port"))
		return
	}

	neighbours := []NeighbourInfo{}
	for _, entry := range state.Neighbours {
		if !match(entry.Addr.String()) {
			continue
		}
		neighbours = append(neighbours, newNeighbourInfo(entry))
	}
	s.writeJSON(w, neighbours)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	state, ok := s.segment.Port(mux.Vars(r)["port"])
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no such port"))
		return
	}

	pending := []PendingInfo{}
	for _, summary := range state.Pending {
		pending = append(pending, newPendingInfo(summary))
	}
	s.writeJSON(w, pending)
}

// matchParam compiles the optional ?match= glob; an absent parameter
// matches everything.
func matchParam(r *http.Request) (func(string) bool, error) {
	pattern := r.URL.Query().Get("match")
	if pattern == "" {
		return func(string) bool { return true }, nil
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile match pattern: %w", err)
	}
	return g.Match, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("failed to encode response", zap.Error(err))
	}
}

type errorInfo struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorInfo{Error: err.Error()}); err != nil {
		s.log.Warnw("failed to encode error response", zap.Error(err))
	}
}
