// Package host provides the background worker and base HTTP service
// scaffolding that every Splot technology binding runs on top of.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/R3E-Network/splot/domain/automation"
	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/thing"
	"github.com/gorilla/mux"
)

// Env threads the collaborators a technology binding needs to construct its
// domain objects: the monotonic clock Timer/Transition schedule against, the
// REST caller Action dispatch and native-URI ResourceLinks delegate to, and
// the Executor listener callbacks run on.
type Env struct {
	Clock    clock.Clock
	Caller   automation.RestCaller
	Executor thing.Executor
}

// NewEnv builds a production Env: a real clock, the given REST caller, and a
// goroutine-per-callback executor.
func NewEnv(caller automation.RestCaller) Env {
	return Env{
		Clock:    clock.RealClock{},
		Caller:   caller,
		Executor: thing.GoExecutor{},
	}
}

// Service is a base HTTP service: identity, router, and lifecycle, shared by
// every technology binding (cmd/splotd and any future host process).
type Service struct {
	mu sync.RWMutex

	id      string
	name    string
	version string

	env    Env
	router *mux.Router

	running bool
	stopCh  chan struct{}
}

// ServiceConfig holds service construction parameters.
type ServiceConfig struct {
	ID      string
	Name    string
	Version string
	Env     Env
}

// NewService creates a new base service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		id:      cfg.ID,
		name:    cfg.Name,
		version: cfg.Version,
		env:     cfg.Env,
		router:  mux.NewRouter(),
		stopCh:  make(chan struct{}),
	}
}

// ID returns the service ID.
func (s *Service) ID() string { return s.id }

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Version returns the service version.
func (s *Service) Version() string { return s.version }

// Env returns the collaborators threaded through this service.
func (s *Service) Env() Env { return s.env }

// Router returns the HTTP router.
func (s *Service) Router() *mux.Router { return s.router }

// Start marks the service running. Callers still drive the actual
// net/http.Server lifecycle; Start/Stop track state for IsRunning and the
// health handler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("service already running")
	}
	s.running = true
	return nil
}

// Stop stops the service.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)
	return nil
}

// IsRunning returns true if the service is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// =============================================================================
// HTTP Middleware
// =============================================================================

// LoggingMiddleware logs requests.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		fmt.Printf("[%s] %s %s %v\n", time.Now().Format(time.RFC3339), r.Method, r.URL.Path, time.Since(start))
	})
}

// RecoveryMiddleware recovers from panics.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				fmt.Printf("panic recovered: %v\n", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Check
// =============================================================================

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// HealthHandler returns a health check handler.
func HealthHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:    "healthy",
			Service:   s.Name(),
			Version:   s.Version(),
			Timestamp: time.Now().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
