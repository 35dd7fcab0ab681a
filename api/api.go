// Package api defines the contracts between the provisioning core and the
// host runtime: the scheduler asks a Provisioner for capacity, a Launcher
// realizes each planned node, and a Computer reports the node's runtime
// state back. The core implements these interfaces; the scheduler and the
// log sink consume them.
package api

// Node is the minimal view of a registered agent node.
type Node interface {
	// Name returns the node's display name.
	Name() string
}

// Computer is the runtime handle for one attached agent node.
type Computer interface {
	Name() string

	// BuildID returns the remote build currently bound to this computer,
	// or "" when no build is bound.
	BuildID() string
	SetBuildID(id string)

	// IsOnline reports whether the agent has completed its connect-back
	// handshake and its channel is up.
	IsOnline() bool

	// IsAcceptingTasks reports whether the scheduler may dispatch a task
	// to this computer. Always false after the computer's single task
	// has completed.
	IsAcceptingTasks() bool
}

// PlannedNode is a promise of one future agent node, returned by
// Provisioner.Provision. The scheduler counts it as NumExecutors units of
// pending capacity until the Node channel resolves.
type PlannedNode struct {
	DisplayName  string
	NumExecutors int

	// Node yields the registered node once provisioning completes. The
	// channel is closed without a value if the unit could not be realized.
	Node <-chan Node
}

// Provisioner supplies capacity on demand. Implementations must be safe for
// concurrent use by the scheduler.
type Provisioner interface {
	// Provision plans excessWorkload new nodes for the given label. An
	// empty label means the scheduler's default label. Returns an empty
	// slice when the label does not match or the call is rate-limited.
	Provision(label string, excessWorkload int) []PlannedNode

	// CanProvision reports whether this provisioner serves the label.
	CanProvision(label string) bool
}

// Launcher drives one node from planned to connected.
type Launcher interface {
	// Launch starts the remote build for the computer's node and blocks
	// until the agent connects or the launch fails. Called at most once
	// per node while IsLaunchSupported is true.
	Launch(c Computer, listener TaskListener)

	// BeforeDisconnect is invoked when the computer's channel is torn
	// down for any reason. It must clear the bound build identifier.
	BeforeDisconnect(c Computer)

	// IsLaunchSupported reports whether Launch may still be called.
	IsLaunchSupported() bool
}

// TaskListener receives user-visible launch diagnostics. The scheduler
// surfaces these messages in the task's log.
type TaskListener interface {
	FatalError(format string, a ...any)
}

// LogSink receives the remote build console location for a connected
// computer so task logs can link back to the build.
type LogSink interface {
	BuildLog(consoleURL, buildID string)
}
