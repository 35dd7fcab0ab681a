// Package cloud provisions ephemeral agent nodes on AWS CodeBuild. Each
// accepted unit of excess scheduler demand becomes one CodeBuild build
// running the agent's connect-back command; the node is retired after its
// single task.
package cloud

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

const (
	// DefaultJNLPImage is the default connect-back container image.
	DefaultJNLPImage = "lsegal/jnlp-docker-agent:alpine"

	// DefaultJNLPCommand is the default agent entry point inside the image.
	DefaultJNLPCommand = "jenkins-agent"

	// DefaultAgentTimeout is the connect wait budget in seconds.
	DefaultAgentTimeout = 120

	// DefaultComputeType is the CodeBuild compute class used when none
	// is configured.
	DefaultComputeType = "BUILD_GENERAL1_SMALL"
)

// Config is the static configuration of one Cloud. ProjectName and Region
// are fixed for the life of the Cloud; the optional fields fall back to
// defaults when blank.
type Config struct {
	// ProjectName is the CodeBuild project builds are started in. Required.
	ProjectName string

	// CredentialsID names a shared-config profile to authenticate with.
	// Empty means the SDK's ambient credential chain.
	CredentialsID string

	// Region is the AWS region. If blank at construction time it is
	// resolved once from the SDK's default region chain and fixed.
	Region string

	// Label restricts which scheduler demand this cloud serves. An empty
	// label matches unlabeled demand only.
	Label string

	// SchedulerURL is the base URL agents connect back to.
	SchedulerURL string

	// JNLPImage is the connect-back container image.
	JNLPImage string

	// JNLPCommand is the connect-back command run inside the image.
	JNLPCommand string

	// AgentTimeout is how long to wait for an agent to connect, in seconds.
	AgentTimeout int

	// ComputeType is the CodeBuild compute class for agent builds.
	ComputeType string

	// EndpointURL points the client at a non-default CodeBuild endpoint,
	// for local simulators. Empty in production.
	EndpointURL string
}

func (c *Config) applyDefaults() {
	if c.JNLPImage == "" {
		c.JNLPImage = DefaultJNLPImage
	}
	if c.JNLPCommand == "" {
		c.JNLPCommand = DefaultJNLPCommand
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = DefaultAgentTimeout
	}
	if c.ComputeType == "" {
		c.ComputeType = DefaultComputeType
	}
	if c.SchedulerURL == "" {
		c.SchedulerURL = "unknown"
	}
}

// Validate checks the required fields. Region must already be resolved.
func (c Config) Validate() error {
	if c.ProjectName == "" {
		return fmt.Errorf("CodeBuild project name is required")
	}
	if c.Region == "" {
		return fmt.Errorf("AWS region is required and could not be resolved from the environment")
	}
	return nil
}

// DefaultRegion resolves the ambient AWS region from the SDK's default
// chain (env, shared config, instance metadata). Returns "" when no
// region is configured anywhere.
func DefaultRegion(ctx context.Context) string {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return ""
	}
	return cfg.Region
}
