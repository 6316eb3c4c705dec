// Command splotd hosts one thing's automation primitives (pairings, rules,
// timers) behind an HTTP management API, wiring the ambient stack (config,
// logging, metrics, middleware) around services/automation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/thing"
	"github.com/R3E-Network/splot/infrastructure/logging"
	metricspkg "github.com/R3E-Network/splot/infrastructure/metrics"
	"github.com/R3E-Network/splot/infrastructure/middleware"
	"github.com/R3E-Network/splot/internal/host"
	"github.com/R3E-Network/splot/pkg/config"
	automationsvc "github.com/R3E-Network/splot/services/automation"
	thingsvc "github.com/R3E-Network/splot/services/thing"
)

const version = "0.1.0"

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	thingID := flag.String("thing-id", "thing1", "ID of the locally hosted thing this process automates")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("splotd", cfg.Logging.Level, cfg.Logging.Format)
	metrics := metricspkg.Init(automationsvc.ServiceID)

	listenAddr := resolveAddr(*addr, cfg)

	caller := host.NewHTTPCaller(10 * time.Second)
	registry := thing.NewRegistry(caller)

	light, err := host.NewDimmableLight(*thingID, clock.RealClock{})
	if err != nil {
		log.Fatalf("build dimmable light: %v", err)
	}
	registry.Host(light)

	env := host.NewEnv(caller)
	svc, err := automationsvc.New(automationsvc.Config{
		Env:        env,
		ThingLinks: registry,
		Logger:     logger,
		ThingID:    *thingID,
	})
	if err != nil {
		log.Fatalf("initialise automation service: %v", err)
	}

	router := svc.Router()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	health := middleware.NewHealthChecker(version)
	health.RegisterCheck("thing_registry", func() error {
		if _, ok := registry.Thing(*thingID); !ok {
			return fmt.Errorf("thing %q not hosted", *thingID)
		}
		return nil
	})
	router.Handle("/healthz", health.Handler()).Methods("GET")
	router.Handle("/livez", middleware.LivenessHandler()).Methods("GET")

	// Registered last: this catch-all addresses the Thing/PropertyKey URI
	// space (spec §6) and would otherwise shadow the fixed paths above,
	// since gorilla/mux matches routes in registration order.
	thingsvc.NewService(registry, logger).RegisterRoutes(router)

	limiter := middleware.NewRateLimiterFromConfig(middleware.DefaultRateLimiterConfig(logger))
	stopCleanup := middleware.StartCleanupFromConfig(limiter, middleware.DefaultRateLimiterConfig(logger))
	defer stopCleanup()

	auth := middleware.NewJWTAuthMiddleware(cfg.Auth.Secret, cfg.Auth.AdminRole, "/healthz", "/livez", "/metrics")

	recovery := middleware.NewRecoveryMiddleware(logger)
	cors := middleware.NewCORSMiddleware(nil)
	security := middleware.NewSecurityHeadersMiddleware(middleware.DefaultSecurityHeaders())
	handler := recovery.Handler(cors.Handler(security.Handler(auth.Handler(limiter.Handler(router)))))
	handler = middleware.LoggingMiddleware(logger)(handler)
	handler = middleware.MetricsMiddleware(automationsvc.ServiceID, metrics)(handler)

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		log.Fatalf("start automation service: %v", err)
	}

	server := &http.Server{
		Addr:         listenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	shutdown := middleware.NewGracefulShutdown(server, 10*time.Second)
	shutdown.OnShutdown(func() {
		if err := svc.Stop(); err != nil {
			logger.WithError(err).Warn("stop automation service")
		}
	})
	shutdown.ListenForSignals()

	logger.Infof("splotd listening on %s for thing %q", listenAddr, *thingID)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("http server failed")
		}
	}()

	shutdown.Wait()
}

func resolveAddr(flagAddr string, cfg *config.Config) string {
	if flagAddr != "" {
		return flagAddr
	}
	host := cfg.Server.Host
	port := cfg.Server.Port
	if port == 0 {
		return ":8080"
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, port)
}
