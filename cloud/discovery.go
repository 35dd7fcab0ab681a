package cloud

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/codebuild"
)

// codebuildRegions are the regions CodeBuild is offered in, for the
// configuration UI's region dropdown.
var codebuildRegions = []string{
	"us-east-1", "us-east-2", "us-west-1", "us-west-2",
	"af-south-1",
	"ap-east-1", "ap-south-1", "ap-northeast-1", "ap-northeast-2",
	"ap-southeast-1", "ap-southeast-2",
	"ca-central-1",
	"eu-central-1", "eu-north-1", "eu-south-1",
	"eu-west-1", "eu-west-2", "eu-west-3",
	"me-south-1",
	"sa-east-1",
}

// ListProjects enumerates the CodeBuild projects visible to the cloud's
// credentials, sorted, following pagination to the end. Credential or
// client failures degrade to an empty list: the configuration UI shows no
// options rather than an error.
func (c *Cloud) ListProjects(ctx context.Context) []string {
	client, err := c.Client()
	if err != nil {
		c.logger.Error().Err(err).Msg("cannot build client to list projects")
		return nil
	}

	var projects []string
	p := codebuild.NewListProjectsPaginator(client, &codebuild.ListProjectsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			c.logger.Error().Err(err).Str("region", c.cfg.Region).Msg("exception listing projects")
			return nil
		}
		projects = append(projects, page.Projects...)
	}
	sort.Strings(projects)
	return projects
}

// ListRegions returns the regions for the configuration UI: the ambient
// default region first when one resolves, then the rest of the CodeBuild
// regions.
func ListRegions(ctx context.Context) []string {
	def := DefaultRegion(ctx)
	regions := make([]string, 0, len(codebuildRegions)+1)
	if def != "" {
		regions = append(regions, def)
	}
	for _, r := range codebuildRegions {
		if r == def {
			continue
		}
		regions = append(regions, r)
	}
	return regions
}
