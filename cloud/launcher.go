package cloud

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codebuild/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/cloudagents/codebuilder/api"
	"github.com/cloudagents/codebuilder/node"
)

// LaunchState is the launcher's position in its lifecycle.
type LaunchState int

const (
	StateIdle LaunchState = iota
	StateLaunchRequested
	StateBuildStarted
	StateAwaitingConnection
	StateConnected
	StateFailed
)

func (s LaunchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunchRequested:
		return "launch-requested"
	case StateBuildStarted:
		return "build-started"
	case StateAwaitingConnection:
		return "awaiting-connection"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// DefaultPollInterval is the spacing between agent-connectivity checks.
// The build's only observable success signal is the agent completing its
// handshake; there is no push notification to wait on.
const DefaultPollInterval = 500 * time.Millisecond

// Launcher starts one CodeBuild build for one node and waits for the
// agent inside it to connect back. Used once: after reaching connected or
// failed, IsLaunchSupported reports false and further launches are
// rejected.
type Launcher struct {
	cloud  *Cloud
	logger zerolog.Logger

	// interval, maxAttempts, and sleep are injectable for deterministic
	// tests. maxAttempts zero means "derive from the agent timeout".
	interval    time.Duration
	maxAttempts int
	sleep       func(time.Duration)

	mu    sync.Mutex
	state LaunchState
}

// NewLauncher creates a launcher bound to the cloud.
func NewLauncher(c *Cloud) *Launcher {
	return &Launcher{
		cloud:    c,
		logger:   c.logger,
		interval: DefaultPollInterval,
		sleep:    time.Sleep,
	}
}

// State returns the launcher's current state.
func (l *Launcher) State() LaunchState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Launcher) setState(s LaunchState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

// IsLaunchSupported reports whether Launch may still be called.
func (l *Launcher) IsLaunchSupported() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state != StateConnected && l.state != StateFailed
}

// Launch starts the build and polls until the computer reports online and
// accepting tasks, or the poll budget runs out. Every failure past build
// start converges on the same cleanup: clear the bound build, report
// through the listener, tear the node down.
func (l *Launcher) Launch(c api.Computer, listener api.TaskListener) {
	if !l.IsLaunchSupported() {
		l.logger.Error().Str("computer", c.Name()).Msg("not launching, launcher already spent")
		return
	}
	l.setState(StateLaunchRequested)

	cbc, ok := c.(*node.Computer)
	if !ok {
		l.logger.Error().Str("computer", c.Name()).Msg("not launching, computer is not a CodeBuild computer")
		return
	}
	n := cbc.Node()
	if n == nil {
		l.logger.Error().Str("computer", c.Name()).Msg("not launching, computer has no node")
		return
	}

	l.logger.Info().Str("node", n.Name()).Msg("launching agent")

	client, err := l.cloud.Client()
	if err != nil {
		l.fail(cbc, listener, err)
		return
	}

	cfg := l.cloud.Config()
	spec := Buildspec(cfg.JNLPCommand, cfg.SchedulerURL, n.Secret(), n.Name())

	out, err := client.StartBuild(context.Background(), &codebuild.StartBuildInput{
		ProjectName:            aws.String(cfg.ProjectName),
		SourceTypeOverride:     types.SourceTypeNoSource,
		BuildspecOverride:      aws.String(spec),
		ImageOverride:          aws.String(cfg.JNLPImage),
		PrivilegedModeOverride: aws.Bool(true),
		ComputeTypeOverride:    types.ComputeType(cfg.ComputeType),
	})
	if err != nil {
		l.fail(cbc, listener, err)
		return
	}
	l.setState(StateBuildStarted)

	buildID := aws.ToString(out.Build.Id)
	cbc.SetBuildID(buildID)
	l.setState(StateAwaitingConnection)

	l.logger.Info().Str("node", n.Name()).Str("build_id", buildID).Msg("waiting for agent to connect")

	attempts := l.maxAttempts
	if attempts == 0 {
		attempts = cfg.AgentTimeout * int(time.Second/l.interval)
	}
	for i := 0; i < attempts; i++ {
		if cbc.IsOnline() && cbc.IsAcceptingTasks() {
			l.setState(StateConnected)
			l.logger.Info().Str("node", n.Name()).Str("build_id", buildID).Msg("agent connected")
			return
		}
		l.sleep(l.interval)
	}

	l.fail(cbc, listener, fmt.Errorf("timed out waiting for agent %s to start for build %s", n.Name(), buildID))
}

// BeforeDisconnect clears the bound build identifier. Invoked whenever
// the computer's channel is torn down; this is the one place that
// guarantees the identifier does not outlive its channel.
func (l *Launcher) BeforeDisconnect(c api.Computer) {
	if cbc, ok := c.(*node.Computer); ok {
		cbc.SetBuildID("")
	}
}

// fail is the terminal cleanup shared by the start-error and poll-timeout
// paths. Node removal is best-effort and never retried.
func (l *Launcher) fail(cbc *node.Computer, listener api.TaskListener, err error) {
	cbc.SetBuildID("")

	evt := l.logger.Error().Err(err).Str("node", cbc.Name())
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		evt = evt.Str("aws_error_code", apiErr.ErrorCode())
	}
	evt.Msg("exception while starting build")

	listener.FatalError("Exception while starting build: %s", err)

	if _, ok := l.cloud.Registry().Get(cbc.Name()); ok {
		cbc.Teardown(node.TeardownLaunchFailure)
	}
	l.setState(StateFailed)
}
