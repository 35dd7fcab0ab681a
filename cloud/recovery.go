package cloud

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"

	"github.com/cloudagents/codebuilder/node"
)

// TerminateStaleNodes tears down every node left in the registry by a
// previous process lifetime. Nothing about a running build survives a
// restart, so any registered node is an orphan: its build, if still
// running, is stopped best-effort and the node is deregistered. Called
// once at process start.
func (c *Cloud) TerminateStaleNodes(ctx context.Context) {
	nodes := c.registry.List()
	if len(nodes) == 0 {
		return
	}

	c.logger.Info().Int("count", len(nodes)).Msg("clearing previous nodes")

	client, err := c.Client()
	if err != nil {
		c.logger.Error().Err(err).Msg("cannot build client for stale node cleanup")
		client = nil
	}

	for _, n := range nodes {
		comp := n.Computer()
		if id := comp.BuildID(); id != "" && client != nil {
			_, err := client.StopBuild(ctx, &codebuild.StopBuildInput{Id: aws.String(id)})
			if err != nil {
				c.logger.Error().Err(err).Str("node", n.Name()).Str("build_id", id).Msg("failed to stop stale build")
			}
		}
		comp.SetBuildID("")
		comp.Teardown(node.TeardownStale)
	}
}
