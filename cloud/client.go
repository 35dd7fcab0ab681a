package cloud

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
)

// CodeBuildAPI is the subset of the CodeBuild client the provisioner
// drives: start a build, stop a build, enumerate projects. The ListProjects
// signature matches codebuild.ListProjectsAPIClient so the SDK paginator
// works against fakes in tests.
type CodeBuildAPI interface {
	StartBuild(ctx context.Context, params *codebuild.StartBuildInput, optFns ...func(*codebuild.Options)) (*codebuild.StartBuildOutput, error)
	StopBuild(ctx context.Context, params *codebuild.StopBuildInput, optFns ...func(*codebuild.Options)) (*codebuild.StopBuildOutput, error)
	ListProjects(ctx context.Context, params *codebuild.ListProjectsInput, optFns ...func(*codebuild.Options)) (*codebuild.ListProjectsOutput, error)
}

// buildClient constructs a CodeBuild client for the config. An HTTP(S)
// proxy is honored from the ambient environment (HTTP_PROXY, HTTPS_PROXY,
// including embedded user:password). When CredentialsID is empty the SDK
// falls back to its ambient credential resolution.
func buildClient(ctx context.Context, cfg Config) (CodeBuildAPI, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		}),
	}
	if cfg.CredentialsID != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.CredentialsID))
	}
	if cfg.EndpointURL != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.EndpointURL != "" {
		return codebuild.NewFromConfig(awsCfg, func(o *codebuild.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}), nil
	}
	return codebuild.NewFromConfig(awsCfg), nil
}
