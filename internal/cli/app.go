package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/backlog-agent/internal/config"
	"github.com/harun/backlog-agent/internal/logger"
	"github.com/harun/backlog-agent/internal/observability"
	"github.com/harun/backlog-agent/internal/tracing"
	"github.com/harun/backlog-agent/pkg/agent"
	"github.com/harun/backlog-agent/pkg/toolexecutor"
	"github.com/harun/backlog-agent/pkg/workitem"
	"github.com/spf13/cobra"
)

// app holds everything a command needs to run conversations
type app struct {
	cfg      *config.Config
	logger   *logger.Logger
	tools    *toolexecutor.ToolExecutor
	provider agent.LLMProvider
	model    string
}

type appOptions struct {
	// console sends log output to stderr in addition to the log file
	console bool
}

// loadConfig reads configuration honoring the global flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newApp validates cfg and wires logging, tracing, the tracking service
// client, the tool executor and the completion provider
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Console:    opts.console,
		Pretty:     cfg.Logging.Pretty,
		Redaction:  cfg.Logging.Redaction,
		MaxSizeMB:  100,
		MaxAgeDays: 7,
		Compress:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg
	zl := a.logger.Zerolog()

	if err := tracing.InitOpenTelemetry(ctx, tracing.Config{
		ServiceName:    "backlog-agent",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Insecure:       cfg.Tracing.Insecure,
		SamplingRate:   cfg.Tracing.SamplingRate,
	}); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			return fmt.Errorf("failed to initialize audit log: %w", err)
		}
	}
	observability.EnsureRegistered()

	client, err := workitem.NewClient(workitem.ClientConfig{
		OrganizationURL:     cfg.DevOps.OrganizationURL,
		Project:             cfg.DevOps.Project,
		PersonalAccessToken: cfg.DevOps.PersonalAccessToken,
		APIVersion:          cfg.DevOps.APIVersion,
		Timeout:             time.Duration(cfg.DevOps.TimeoutSeconds) * time.Second,
		Logger:              zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracking service client: %w", err)
	}

	a.tools = toolexecutor.New()
	if err := workitem.RegisterTools(a.tools, client.Builder(), client); err != nil {
		return err
	}

	profile, err := cfg.ProviderProfile()
	if err != nil {
		return err
	}
	factory := &agent.ProviderFactory{}
	a.provider, err = factory.NewProvider(profile)
	if err != nil {
		return fmt.Errorf("failed to create completion provider: %w", err)
	}
	a.model = profile.Model

	zl.Info().
		Str("provider", profile.Provider).
		Str("model", profile.Model).
		Str("organization", cfg.DevOps.OrganizationURL).
		Str("project", cfg.DevOps.Project).
		Strs("tools", a.tools.ListTools()).
		Msg("Backlog agent initialized")

	return nil
}

// newSession creates a conversation configured from the agent settings
func (a *app) newSession(id string) (*agent.Session, error) {
	agentCfg := a.cfg.Agent
	return agent.NewSession(agent.SessionConfig{
		ID:       id,
		Provider: a.provider,
		Tools:    a.tools,
		ToolPolicy: &toolexecutor.ToolPolicy{
			Allow: agentCfg.Tools.Allow,
			Deny:  agentCfg.Tools.Deny,
		},
		Model:        a.model,
		Temperature:  agentCfg.Temperature,
		MaxTokens:    agentCfg.MaxTokens,
		Instructions: agentCfg.Instructions,
		MaxMessages:  agentCfg.MaxMessages,
		MaxToolTurns: agentCfg.MaxToolTurns,
		ToolTimeout:  time.Duration(agentCfg.ToolTimeoutSeconds) * time.Second,
		Logger:       a.logger.Zerolog(),
	})
}

// Close flushes telemetry and releases log files
func (a *app) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to flush traces")
	}
	if err := observability.GetAuditLogger().Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close audit log")
	}
	_ = a.logger.Close()
}
