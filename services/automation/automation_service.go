// Package automation exposes the Splot automation core — a thing's
// Pairing/Rule/Timer primitives — over HTTP: CRUD for each primitive kind
// under /N/f/{pmgr,rmgr,tmgr}, persistent-state snapshot/restore, and a
// websocket change feed for external observers.
package automation

import (
	"context"
	"sync"

	"github.com/R3E-Network/splot/domain/automation"
	"github.com/R3E-Network/splot/domain/thing"
	"github.com/R3E-Network/splot/infrastructure/logging"
	"github.com/R3E-Network/splot/internal/host"
)

const (
	ServiceID   = "automation"
	ServiceName = "Automation Service"
	Version     = "1.0.0"
)

// Service hosts one thing's AutomationManager behind an HTTP API.
type Service struct {
	*host.Service
	mu sync.RWMutex

	mgr  *automation.Manager
	log  *logging.Logger
	feed *changeFeed
}

// Config holds Automation service construction parameters.
type Config struct {
	Env        host.Env
	ThingLinks thing.ResourceLinkManager
	Logger     *logging.Logger

	// ThingID, if set, hosts this Manager's "f/..." address space
	// (pmgr/rmgr/tmgr enabled-state writes, spec §8 scenario d) under that
	// thing on ThingLinks, provided ThingLinks also implements
	// thing.FunctionHost.
	ThingID string
}

// New creates a new Automation service wrapping an AutomationManager bound
// to the given thing's resource link resolver.
func New(cfg Config) (*Service, error) {
	base := host.NewService(host.ServiceConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Env:     cfg.Env,
	})

	mgr := automation.NewManager(cfg.ThingLinks, cfg.Env.Executor, cfg.Env.Clock, cfg.Env.Caller)

	if cfg.ThingID != "" {
		if fh, ok := cfg.ThingLinks.(thing.FunctionHost); ok {
			fh.HostFunctions(cfg.ThingID, mgr)
		}
	}

	s := &Service{
		Service: base,
		mgr:     mgr,
		log:     cfg.Logger,
		feed:    newChangeFeed(),
	}

	s.registerRoutes()
	return s, nil
}

// Manager returns the underlying AutomationManager, e.g. for snapshot
// persistence at shutdown.
func (s *Service) Manager() *automation.Manager { return s.mgr }

func (s *Service) registerRoutes() {
	router := s.Router()
	router.HandleFunc("/health", host.HealthHandler(s.Service)).Methods("GET")

	router.HandleFunc("/f/pmgr", s.handleListPairings).Methods("GET")
	router.HandleFunc("/f/pmgr", s.handleCreatePairing).Methods("POST")
	router.HandleFunc("/f/pmgr/{id}", s.handleGetPairing).Methods("GET")
	router.HandleFunc("/f/pmgr/{id}", s.handleDeletePairing).Methods("DELETE")

	router.HandleFunc("/f/rmgr", s.handleListRules).Methods("GET")
	router.HandleFunc("/f/rmgr", s.handleCreateRule).Methods("POST")
	router.HandleFunc("/f/rmgr/{id}", s.handleGetRule).Methods("GET")
	router.HandleFunc("/f/rmgr/{id}", s.handleDeleteRule).Methods("DELETE")

	router.HandleFunc("/f/tmgr", s.handleListTimers).Methods("GET")
	router.HandleFunc("/f/tmgr", s.handleCreateTimer).Methods("POST")
	router.HandleFunc("/f/tmgr/{id}", s.handleGetTimer).Methods("GET")
	router.HandleFunc("/f/tmgr/{id}", s.handleDeleteTimer).Methods("DELETE")
	router.HandleFunc("/f/tmgr/{id}/disable", s.handleDisableTimer).Methods("POST")

	router.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")
	router.HandleFunc("/snapshot", s.handleRestore).Methods("PUT")

	router.HandleFunc("/changes", s.handleChangeFeed)
}

// Start starts the automation service. The manager's primitives are already
// live (Enable/Arm happens at creation and at Restore time); Start exists
// to satisfy the host.Service lifecycle and to start the change feed pump.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Service.Start(ctx); err != nil {
		return err
	}
	go s.feed.run(ctx)
	return nil
}

// Stop stops the automation service and its change feed.
func (s *Service) Stop() error {
	s.feed.stop()
	return s.Service.Stop()
}
