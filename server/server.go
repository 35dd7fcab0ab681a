// Package server exposes the provisioning core over HTTP: the agent
// connect-back endpoint that flips computers online, the scheduler-facing
// management API, and configuration discovery for the UI.
package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cloudagents/codebuilder/api"
	"github.com/cloudagents/codebuilder/cloud"
	"github.com/cloudagents/codebuilder/node"
)

// Server routes scheduler demand and agent handshakes to the clouds and
// the node registry.
type Server struct {
	registry   *node.Registry
	clouds     []*cloud.Cloud
	logSink    api.LogSink
	logger     zerolog.Logger
	instanceID string
	startedAt  time.Time
	upgrader   websocket.Upgrader
}

// New creates a server over the given registry and clouds.
func New(registry *node.Registry, clouds []*cloud.Cloud, logger zerolog.Logger) *Server {
	s := &Server{
		registry:   registry,
		clouds:     clouds,
		logger:     logger,
		instanceID: uuid.NewString(),
		startedAt:  time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.logSink = logLinkSink{logger}
	return s
}

// SetLogSink replaces the sink build console links are published to.
func (s *Server) SetLogSink(sink api.LogSink) {
	s.logSink = sink
}

// Routes registers all handlers on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/provision", s.handleProvision)
	mux.HandleFunc("/v1/nodes", s.handleNodes)
	mux.HandleFunc("/v1/nodes/task", s.handleTaskEvent)
	mux.HandleFunc("/v1/discovery/projects", s.handleDiscoverProjects)
	mux.HandleFunc("/v1/discovery/regions", s.handleDiscoverRegions)
	mux.HandleFunc("/v1/agent/connect", s.handleAgentConnect)
}

// ListenAndServe serves the API on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.Routes(mux)
	return http.ListenAndServe(addr, mux)
}

// logLinkSink writes build console links to the server log when no other
// sink is wired.
type logLinkSink struct {
	logger zerolog.Logger
}

func (s logLinkSink) BuildLog(consoleURL, buildID string) {
	s.logger.Info().Str("build_id", buildID).Str("console_url", consoleURL).Msg("build log available")
}
