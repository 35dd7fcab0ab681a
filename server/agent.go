package server

import (
	"net/http"

	"github.com/cloudagents/codebuilder/api"
)

// handleAgentConnect handles connect-back handshakes from agents running
// inside CodeBuild builds.
// Route: GET /v1/agent/connect?name=<node>&secret=<secret>
func (s *Server) handleAgentConnect(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	secret := r.URL.Query().Get("secret")

	if name == "" {
		WriteError(w, &api.InvalidParameterError{Message: "missing name parameter"})
		return
	}

	n, ok := s.registry.Get(name)
	if !ok {
		WriteError(w, &api.NotFoundError{Resource: "node", ID: name})
		return
	}

	if n.Secret() != secret {
		WriteError(w, &api.UnauthorizedError{})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("node", name).Msg("websocket upgrade failed for agent connect")
		return
	}
	defer conn.Close()

	comp := n.Computer()
	comp.SetOnline(true)
	s.logger.Info().Str("node", name).Msg("agent connected")

	// Hold the channel open until the agent goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	comp.SetOnline(false)
	if l := n.Launcher(); l != nil {
		l.BeforeDisconnect(comp)
	}
	s.logger.Info().Str("node", name).Msg("agent disconnected")
}
