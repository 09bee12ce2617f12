// Package httpapi exposes the plugin kernel's host <-> core command
// surface (spec.md §6) as JSON endpoints. It is additive: spec.md leaves
// the host/core transport unspecified, so this package gives the pack's
// transport-adjacent dependencies (JWT auth, websockets, Prometheus,
// swaggo docs) a concrete home per SPEC_FULL.md's domain-stack wiring.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/opskernel/pluginhost/internal/kernel"
	"github.com/opskernel/pluginhost/internal/middleware"
)

// Server wraps a kernel.Manager with an HTTP transport.
type Server struct {
	manager    *kernel.Manager
	signingKey []byte
	mux        *http.ServeMux
	events     *eventHub
	metrics    *metricsSet
}

// NewServer wires a subset of the spec.md §6 commands as JSON routes,
// guarded by bearer auth and per-identity rate limiting. There are no
// routes for state lookup, revoke, file list/delete/watch, storage
// delete/clear/keys/has/size, or audit-log reads.
func NewServer(manager *kernel.Manager, signingKey []byte) *Server {
	s := &Server{
		manager:    manager,
		signingKey: signingKey,
		mux:        http.NewServeMux(),
		events:     newEventHub(),
		metrics:    newMetricsSet(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	auth := middleware.BearerAuth(s.signingKey)
	limit := middleware.RateLimitMiddleware(middleware.DefaultRateLimiter, middleware.SubjectBasedKey)
	protect := func(h http.HandlerFunc) http.Handler {
		return auth(limit(s.instrument(h)))
	}

	s.mux.HandleFunc("/auth/token", s.handleIssueToken)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", s.metrics.handler())
	s.mux.Handle("/swagger/", httpSwagger.WrapHandler)

	s.mux.Handle("/plugins", protect(s.handleListPlugins))
	s.mux.Handle("/plugins/install", protect(s.handleInstall))
	s.mux.Handle("/plugins/activate", protect(s.handleActivate))
	s.mux.Handle("/plugins/deactivate", protect(s.handleDeactivate))
	s.mux.Handle("/plugins/uninstall", protect(s.handleUninstall))
	s.mux.Handle("/plugins/grant", protect(s.handleGrantPermission))
	s.mux.Handle("/plugins/dependencies", protect(s.handleResolveDependencies))
	s.mux.Handle("/storage/get", protect(s.handleStorageGet))
	s.mux.Handle("/storage/set", protect(s.handleStorageSet))
	s.mux.Handle("/fs/read", protect(s.handleFSRead))
	s.mux.Handle("/fs/write", protect(s.handleFSWrite))
	s.mux.Handle("/net/request", protect(s.handleNetRequest))
	s.mux.Handle("/audit/export", protect(s.handleAuditExport))
	s.mux.Handle("/ws/events", auth(http.HandlerFunc(s.handleWebsocket)))
}

func (s *Server) instrument(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		s.metrics.observeRequest(r.URL.Path, time.Since(start))
	}
}

// Handler returns the server's root http.Handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Run starts the HTTP server on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("httpapi: shutdown error: %v", err)
		}
	}()
	log.Printf("httpapi: listening on %s", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
