package cloud

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudagents/codebuilder/api"
	"github.com/cloudagents/codebuilder/node"
)

// ProvisionCooldown is the minimum spacing between accepted Provision
// calls on one Cloud. The scheduler recomputes unmet demand faster than
// new capacity shows up; without the cooldown every recomputation would
// provision the same backlog again.
const ProvisionCooldown = 500 * time.Millisecond

var cloudSeq atomic.Int64

// Cloud provisions ephemeral CodeBuild-backed agent nodes. One Cloud per
// CodeBuild project; several clouds may share one node registry.
type Cloud struct {
	name     string
	cfg      Config
	registry *node.Registry
	logger   zerolog.Logger

	clientOnce sync.Once
	client     CodeBuildAPI
	clientErr  error

	// newClient is swapped out by tests.
	newClient func(ctx context.Context, cfg Config) (CodeBuildAPI, error)

	// newLauncher is swapped out by tests.
	newLauncher func(c *Cloud) api.Launcher

	listener api.TaskListener

	mu            sync.Mutex
	lastProvision time.Time
	now           func() time.Time
}

// New creates a Cloud. An empty name gets the next codebuilder_<N> default.
// A blank Region is resolved once from the ambient chain; construction
// fails if the project is missing or no region can be determined.
func New(ctx context.Context, name string, cfg Config, registry *node.Registry, logger zerolog.Logger) (*Cloud, error) {
	cfg.applyDefaults()
	if cfg.Region == "" {
		cfg.Region = DefaultRegion(ctx)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("codebuilder_%d", cloudSeq.Add(1)-1)
	}

	c := &Cloud{
		name:      name,
		cfg:       cfg,
		registry:  registry,
		newClient: buildClient,
		now:       time.Now,
		logger:    logger.With().Str("cloud", name).Logger(),
	}
	c.newLauncher = func(c *Cloud) api.Launcher { return NewLauncher(c) }
	c.listener = logListener{c.logger}

	c.logger.Info().Str("project", cfg.ProjectName).Str("region", cfg.Region).Msg("initializing cloud")
	return c, nil
}

// Name returns the cloud's display name.
func (c *Cloud) Name() string {
	return c.name
}

// Config returns the cloud's static configuration.
func (c *Cloud) Config() Config {
	return c.cfg
}

// Registry returns the node registry this cloud registers into.
func (c *Cloud) Registry() *node.Registry {
	return c.registry
}

// SetTaskListener replaces the listener launch diagnostics are reported
// through. Call before the first Provision.
func (c *Cloud) SetTaskListener(l api.TaskListener) {
	c.listener = l
}

// Client returns the memoized CodeBuild client, constructing it on first
// use. Concurrent callers get the same client; construction happens once.
func (c *Cloud) Client() (CodeBuildAPI, error) {
	c.clientOnce.Do(func() {
		c.client, c.clientErr = c.newClient(context.Background(), c.cfg)
	})
	return c.client, c.clientErr
}

// CanProvision reports whether this cloud serves the label: an absent
// (empty) label always matches, otherwise the match is exact string
// equality with the configured label.
func (c *Cloud) CanProvision(label string) bool {
	ok := label == "" || label == c.cfg.Label
	c.logger.Info().Str("label", label).Bool("can_provision", ok).Msg("checked provisioning capability")
	return ok
}

// Provision plans excessWorkload new nodes for the label. Each planned
// node is realized asynchronously: the node is created, registered, and
// its launcher started; the planned node's channel resolves once the node
// is in the registry. Per-unit failures never fail the call; the affected
// unit's channel just closes empty.
func (c *Cloud) Provision(label string, excessWorkload int) []api.PlannedNode {
	c.mu.Lock()
	defer c.mu.Unlock()

	planned := []api.PlannedNode{}

	if label != "" && label != c.cfg.Label {
		return planned
	}

	elapsed := c.now().Sub(c.lastProvision)
	if elapsed < ProvisionCooldown {
		c.logger.Info().
			Int("excess_workload", excessWorkload).
			Dur("elapsed", elapsed).
			Dur("cooldown", ProvisionCooldown).
			Msg("provision skipped, still on cooldown")
		return planned
	}

	c.logger.Info().Int("excess_workload", excessWorkload).Str("label", label).Msg("provisioning nodes")

	for i := 0; i < excessWorkload; i++ {
		displayName := fmt.Sprintf("%s.cb-%s", c.cfg.ProjectName, randomSuffix(4))
		resolved := make(chan api.Node, 1)

		go c.launchNode(displayName, resolved)

		planned = append(planned, api.PlannedNode{
			DisplayName:  displayName,
			NumExecutors: 1,
			Node:         resolved,
		})
	}

	c.lastProvision = c.now()
	return planned
}

// launchNode creates and registers one node, resolves its planned-node
// channel, and runs the launcher to completion. Launch failures tear the
// node down; they are reported through the task listener, not returned.
func (c *Cloud) launchNode(displayName string, resolved chan<- api.Node) {
	defer close(resolved)

	n := node.New(displayName, c.cfg.Region, c.cfg.ProjectName, c.registry, c.logger)
	launcher := c.newLauncher(c)
	n.SetLauncher(launcher)

	if err := c.registry.Add(n); err != nil {
		c.logger.Error().Err(err).Str("node", displayName).Msg("failed to register node")
		return
	}
	resolved <- n

	launcher.Launch(n.Computer(), c.listener)
}

// String formats the cloud as name plus project.
func (c *Cloud) String() string {
	return fmt.Sprintf("%s<%s>", c.name, c.cfg.ProjectName)
}

const suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// randomSuffix returns n random ASCII letters.
func randomSuffix(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = suffixAlphabet[int(b[i])%len(suffixAlphabet)]
	}
	return string(b)
}

// logListener reports launch diagnostics to the cloud's log when the
// scheduler has not supplied its own listener.
type logListener struct {
	logger zerolog.Logger
}

func (l logListener) FatalError(format string, a ...any) {
	l.logger.Error().Msg(fmt.Sprintf(format, a...))
}
