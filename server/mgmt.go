package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cloudagents/codebuilder/api"
	"github.com/cloudagents/codebuilder/cloud"
)

// handleHealthz returns a simple health check response.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"component":      "codebuilderd",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

// handleStatus returns provisioner status information.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	clouds := make([]string, 0, len(s.clouds))
	for _, c := range s.clouds {
		clouds = append(clouds, c.String())
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"component":      "codebuilderd",
		"instance_id":    s.instanceID,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"clouds":         clouds,
		"nodes":          s.registry.Len(),
	})
}

// ProvisionRequest is the scheduler's demand signal: a label (empty for
// the default label) and how many units of capacity it is short.
type ProvisionRequest struct {
	Label          string `json:"label"`
	ExcessWorkload int    `json:"excess_workload"`
}

// ProvisionResponse lists the display names of the planned nodes.
type ProvisionResponse struct {
	Cloud   string   `json:"cloud,omitempty"`
	Planned []string `json:"planned"`
}

// handleProvision accepts a demand signal and plans capacity on the first
// cloud serving the label.
// Route: POST /v1/provision
func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, &api.InvalidParameterError{Message: "method not allowed"})
		return
	}

	var req ProvisionRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, &api.InvalidParameterError{Message: err.Error()})
		return
	}
	if req.ExcessWorkload < 0 {
		WriteError(w, &api.InvalidParameterError{Message: "excess_workload must be >= 0"})
		return
	}

	resp := ProvisionResponse{Planned: []string{}}
	for _, c := range s.clouds {
		if !c.CanProvision(req.Label) {
			continue
		}
		for _, p := range c.Provision(req.Label, req.ExcessWorkload) {
			resp.Planned = append(resp.Planned, p.DisplayName)
		}
		resp.Cloud = c.Name()
		break
	}
	WriteJSON(w, http.StatusOK, resp)
}

// NodeEntry is a read-only node summary for the management API.
type NodeEntry struct {
	Name           string `json:"name"`
	BuildID        string `json:"build_id,omitempty"`
	ConsoleURL     string `json:"console_url,omitempty"`
	Online         bool   `json:"online"`
	AcceptingTasks bool   `json:"accepting_tasks"`
	Created        string `json:"created"`
}

// handleNodes lists the registered nodes.
// Route: GET /v1/nodes
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.registry.List()
	entries := make([]NodeEntry, 0, len(nodes))
	for _, n := range nodes {
		comp := n.Computer()
		entries = append(entries, NodeEntry{
			Name:           n.Name(),
			BuildID:        comp.BuildID(),
			ConsoleURL:     comp.BuildURL(),
			Online:         comp.IsOnline(),
			AcceptingTasks: comp.IsAcceptingTasks(),
			Created:        n.CreatedAt().UTC().Format(time.RFC3339),
		})
	}
	WriteJSON(w, http.StatusOK, entries)
}

// TaskEvent is a scheduler task lifecycle signal for one node.
type TaskEvent struct {
	Node       string `json:"node"`
	Event      string `json:"event"` // "accepted", "completed", "completed_with_problems"
	Task       string `json:"task"`
	DurationMS int64  `json:"duration_ms"`
	Problems   string `json:"problems,omitempty"`
}

// handleTaskEvent forwards a scheduler task signal to the node's computer.
// Route: POST /v1/nodes/task
func (s *Server) handleTaskEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, &api.InvalidParameterError{Message: "method not allowed"})
		return
	}

	var ev TaskEvent
	if err := ReadJSON(r, &ev); err != nil {
		WriteError(w, &api.InvalidParameterError{Message: err.Error()})
		return
	}

	n, ok := s.registry.Get(ev.Node)
	if !ok {
		WriteError(w, &api.NotFoundError{Resource: "node", ID: ev.Node})
		return
	}
	comp := n.Computer()
	duration := time.Duration(ev.DurationMS) * time.Millisecond

	switch ev.Event {
	case "accepted":
		comp.TaskAccepted(ev.Task)
		if url := comp.BuildURL(); url != "" {
			s.logSink.BuildLog(url, comp.BuildID())
		}
	case "completed":
		comp.TaskCompleted(ev.Task, duration)
	case "completed_with_problems":
		comp.TaskCompletedWithProblems(ev.Task, duration, fmt.Errorf("%s", ev.Problems))
	default:
		WriteError(w, &api.InvalidParameterError{Message: "unknown event: " + ev.Event})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleDiscoverProjects returns the CodeBuild projects visible to each
// cloud, for the configuration UI's project dropdown.
// Route: GET /v1/discovery/projects
func (s *Server) handleDiscoverProjects(w http.ResponseWriter, r *http.Request) {
	result := make(map[string][]string, len(s.clouds))
	for _, c := range s.clouds {
		projects := c.ListProjects(r.Context())
		if projects == nil {
			projects = []string{}
		}
		result[c.Name()] = projects
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleDiscoverRegions returns the regions for the configuration UI.
// Route: GET /v1/discovery/regions
func (s *Server) handleDiscoverRegions(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, cloud.ListRegions(r.Context()))
}
