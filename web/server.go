// Package web exposes the challenge engine over HTTP: the vendor webhook
// endpoints, the challenge page API, and the verify/reset/disable
// actions the page calls.
package web

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/typeshield/typeshield"
	"github.com/typeshield/typeshield/bridge"
)

// Server binds the engine and the bridge registry to HTTP routes.
type Server struct {
	engine  *typeshield.Engine
	bridges *bridge.Registry
	log     *zap.Logger
}

// NewServer builds the HTTP surface. A nil logger disables request
// logging.
func NewServer(engine *typeshield.Engine, bridges *bridge.Registry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{engine: engine, bridges: bridges, log: log}
}

// Routes returns the handler tree with logging and security headers
// applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /hooks/{bridge}", s.handleHook)
	mux.HandleFunc("POST /verify-otp", s.handleVerify)
	mux.HandleFunc("POST /reset-account", s.handleReset)
	mux.HandleFunc("POST /reset-account-now", s.handleResetNow)
	mux.HandleFunc("POST /disable-account", s.handleDisable)
	mux.HandleFunc("GET /{cid}", s.handleChallenge)

	return securityHeaders(requestLogging(s.log, mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
