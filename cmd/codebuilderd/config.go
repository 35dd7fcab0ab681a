package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/cloudagents/codebuilder/cloud"
)

// FileConfig is the daemon's TOML configuration.
type FileConfig struct {
	// SchedulerURL is the base URL agents connect back to.
	SchedulerURL string `toml:"scheduler_url"`

	// Listen is the daemon's listen address.
	Listen string `toml:"listen"`

	// Clouds holds one block per CodeBuild project to provision from.
	Clouds []CloudBlock `toml:"cloud"`
}

// CloudBlock configures one cloud.
type CloudBlock struct {
	Name         string `toml:"name"`
	Project      string `toml:"project"`
	Credentials  string `toml:"credentials"`
	Region       string `toml:"region"`
	Label        string `toml:"label"`
	Image        string `toml:"image"`
	Command      string `toml:"command"`
	AgentTimeout int    `toml:"agent_timeout"`
	ComputeType  string `toml:"compute_type"`
	EndpointURL  string `toml:"endpoint_url"`
}

// LoadConfig reads the TOML config file and applies environment
// overrides. Env vars win over the file so deployments can patch a shared
// config without editing it.
func LoadConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if v := os.Getenv("CODEBUILDER_SCHEDULER_URL"); v != "" {
		cfg.SchedulerURL = v
	}
	if v := os.Getenv("CODEBUILDER_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if cfg.Listen == "" {
		cfg.Listen = ":9440"
	}

	if len(cfg.Clouds) == 0 {
		if project := os.Getenv("CODEBUILDER_PROJECT"); project != "" {
			cfg.Clouds = append(cfg.Clouds, CloudBlock{
				Project:     project,
				Region:      os.Getenv("CODEBUILDER_REGION"),
				Label:       os.Getenv("CODEBUILDER_LABEL"),
				Credentials: os.Getenv("CODEBUILDER_CREDENTIALS"),
			})
		}
	}

	if len(cfg.Clouds) == 0 {
		return cfg, fmt.Errorf("no clouds configured: set [[cloud]] blocks in %s or CODEBUILDER_PROJECT", path)
	}
	return cfg, nil
}

// CloudConfig converts a block into the cloud package's configuration.
func (b CloudBlock) CloudConfig(schedulerURL string) cloud.Config {
	return cloud.Config{
		ProjectName:   b.Project,
		CredentialsID: b.Credentials,
		Region:        b.Region,
		Label:         b.Label,
		SchedulerURL:  schedulerURL,
		JNLPImage:     b.Image,
		JNLPCommand:   b.Command,
		AgentTimeout:  b.AgentTimeout,
		ComputeType:   b.ComputeType,
		EndpointURL:   b.EndpointURL,
	}
}
