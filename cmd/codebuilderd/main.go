package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"

	"github.com/cloudagents/codebuilder/cloud"
	"github.com/cloudagents/codebuilder/node"
	"github.com/cloudagents/codebuilder/server"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Str("component", "codebuilderd").
		Logger()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if *addr != "" {
		cfg.Listen = *addr
	}

	ctx := context.Background()
	registry := node.NewRegistry()

	clouds := make([]*cloud.Cloud, 0, len(cfg.Clouds))
	for _, block := range cfg.Clouds {
		c, err := cloud.New(ctx, block.Name, block.CloudConfig(cfg.SchedulerURL), registry, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("project", block.Project).Msg("failed to construct cloud")
		}
		c.TerminateStaleNodes(ctx)
		clouds = append(clouds, c)
	}

	s := server.New(registry, clouds, logger)
	logger.Info().Str("addr", cfg.Listen).Int("clouds", len(clouds)).Msg("starting codebuilderd")
	if err := s.ListenAndServe(cfg.Listen); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
