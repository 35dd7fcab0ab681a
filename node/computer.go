package node

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultGraceDelay is how long a computer waits after its task completes
// before deregistering its node, so in-flight log output can flush.
const DefaultGraceDelay = 500 * time.Millisecond

// TeardownReason says why a node is being removed from the registry.
type TeardownReason string

const (
	TeardownLaunchFailure TeardownReason = "launch-failure"
	TeardownTaskCompleted TeardownReason = "task-completed"
	TeardownStale         TeardownReason = "stale"
)

// Computer is the live counterpart of a Node. It tracks the bound remote
// build and intercepts the scheduler's task lifecycle signals to enforce
// the single-task contract.
type Computer struct {
	node     *Node
	region   string
	project  string
	registry *Registry
	grace    time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	buildID   string
	online    bool
	accepting bool
	retired   bool
}

// Name returns the owning node's display name.
func (c *Computer) Name() string {
	return c.node.Name()
}

// Node returns the owning node.
func (c *Computer) Node() *Node {
	return c.node
}

// BuildID returns the bound remote build identifier, or "".
func (c *Computer) BuildID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildID
}

// SetBuildID binds or clears the remote build identifier. At most one
// build is ever bound at a time.
func (c *Computer) SetBuildID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buildID = id
}

// IsOnline reports whether the agent's channel is up.
func (c *Computer) IsOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// SetOnline records the agent channel coming up or going down. A retired
// computer never goes back to accepting tasks, no matter how often the
// agent reconnects.
func (c *Computer) SetOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
	if !online || c.retired {
		c.accepting = false
	} else {
		c.accepting = true
	}
}

// IsAcceptingTasks reports whether the scheduler may dispatch a task here.
func (c *Computer) IsAcceptingTasks() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accepting
}

// SetGraceDelay overrides the post-task deregistration delay.
func (c *Computer) SetGraceDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grace = d
}

// BuildURL returns the remote build console URL for the bound build.
func (c *Computer) BuildURL() string {
	id := c.BuildID()
	if id == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.console.aws.amazon.com/codesuite/codebuild/projects/%s/build/%s",
		c.region, c.project, url.QueryEscape(id))
}

// TaskAccepted records the scheduler dispatching a task to this computer.
func (c *Computer) TaskAccepted(task string) {
	c.logger.Info().Str("task", task).Msg("task accepted")
}

// TaskCompleted records the task finishing and retires the computer.
func (c *Computer) TaskCompleted(task string, duration time.Duration) {
	c.logger.Info().Str("task", task).Dur("duration", duration).Msg("task completed")
	c.gracefulShutdown()
}

// TaskCompletedWithProblems records the task failing and retires the
// computer. Success and failure converge on the same teardown.
func (c *Computer) TaskCompletedWithProblems(task string, duration time.Duration, problems error) {
	c.logger.Error().Str("task", task).Dur("duration", duration).Err(problems).Msg("task completed with problems")
	c.gracefulShutdown()
}

// gracefulShutdown synchronously stops accepting tasks, then deregisters
// the node after the grace delay. Deregistration is best-effort.
func (c *Computer) gracefulShutdown() {
	c.mu.Lock()
	c.accepting = false
	c.retired = true
	grace := c.grace
	c.mu.Unlock()

	go func() {
		time.Sleep(grace)
		c.Teardown(TeardownTaskCompleted)
	}()
}

// Teardown removes the node from the registry. Both the launch-failure
// path and the post-task path end here. Failures are logged, never
// retried: a node that sticks around is a leak for external monitoring
// to catch, not a reason to block the scheduler.
func (c *Computer) Teardown(reason TeardownReason) {
	c.mu.Lock()
	c.accepting = false
	c.retired = true
	c.mu.Unlock()

	if removed := c.registry.Remove(c.node.Name()); !removed {
		c.logger.Warn().Str("reason", string(reason)).Msg("node already absent from registry during teardown")
		return
	}
	c.logger.Info().Str("reason", string(reason)).Msg("node deregistered")
}

// String formats the computer as its name plus the bound build.
func (c *Computer) String() string {
	return fmt.Sprintf("name: %s buildID: %s", c.Name(), c.BuildID())
}
