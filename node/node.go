// Package node tracks ephemeral agent nodes for their single-task lifetime.
// Nodes are never persisted: a node registered by a previous process is an
// orphan by definition and is terminated on startup.
package node

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudagents/codebuilder/api"
)

// Node is one ephemeral agent. It is created when provisioning decides to
// add capacity and deregistered either on launch failure or after its one
// task completes. A node is never offered a second task.
type Node struct {
	name      string
	secret    string
	createdAt time.Time
	computer  *Computer

	mu       sync.Mutex
	launcher api.Launcher
}

// New creates a node and its attached computer. The region and project
// identify the remote build service the node's builds run in; they are
// needed to format console URLs.
func New(name, region, project string, registry *Registry, logger zerolog.Logger) *Node {
	n := &Node{
		name:      name,
		secret:    newSecret(),
		createdAt: time.Now(),
	}
	n.computer = &Computer{
		node:      n,
		region:    region,
		project:   project,
		registry:  registry,
		grace:     DefaultGraceDelay,
		accepting: true,
		logger:    logger.With().Str("node", name).Logger(),
	}
	return n
}

// Name returns the node's display name.
func (n *Node) Name() string {
	return n.name
}

// Secret returns the connect-back secret the agent must present.
func (n *Node) Secret() string {
	return n.secret
}

// CreatedAt returns the node's creation time.
func (n *Node) CreatedAt() time.Time {
	return n.createdAt
}

// Computer returns the node's runtime handle.
func (n *Node) Computer() *Computer {
	return n.computer
}

// SetLauncher binds the launcher that realizes this node.
func (n *Node) SetLauncher(l api.Launcher) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.launcher = l
}

// Launcher returns the node's launcher, or nil before one is bound.
func (n *Node) Launcher() api.Launcher {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.launcher
}

func newSecret() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
