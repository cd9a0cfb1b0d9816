package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/daemon"
	"github.com/haasonsaas/nexus/internal/mcp"
	"github.com/haasonsaas/nexus/internal/memory"
	"github.com/haasonsaas/nexus/internal/profile"
	"github.com/haasonsaas/nexus/internal/skills"
)

// buildBridgeCmd creates the "bridge" command, which starts the local IPC
// daemon (paired CLI/bot/chat-completions front-ends talk to this over a
// Unix socket) instead of the gRPC/HTTP gateway "serve" starts.
func buildBridgeCmd() *cobra.Command {
	var (
		configPath string
		socketPath string
		provider   string
	)

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Start the local IPC bridge daemon",
		Long: `Start the local IPC bridge daemon: a single-user session runtime, tool
dispatch pipeline, and job scheduler exposed over a length-prefixed JSON-RPC
socket for the CLI, chat bots, and the chat-completions facade to share.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runBridge(cmd.Context(), configPath, socketPath, provider)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", profile.DefaultConfigPath(),
		"Path to YAML configuration file")
	cmd.Flags().StringVar(&socketPath, "socket", "",
		"Path to the bridge's Unix socket (defaults to ~/.nexus/bridge/bridge.sock)")
	cmd.Flags().StringVar(&provider, "provider", "",
		"LLM provider id to use for sessions and scheduled jobs (defaults to llm.default_provider)")

	return cmd
}

func runBridge(ctx context.Context, configPath, socketPath, providerID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	llmProvider, model, err := buildLLMProvider(cfg, providerID)
	if err != nil {
		return fmt.Errorf("failed to build llm provider: %w", err)
	}

	var mgr *mcp.Manager
	if len(cfg.MCP.Servers) > 0 {
		mgr = mcp.NewManager(&cfg.MCP, slog.Default())
	}

	memMgr, err := memory.NewManager(&cfg.VectorMemory)
	if err != nil {
		slog.Warn("bridge daemon starting without memory search", "error", err)
		memMgr = nil
	}

	skillsMgr, err := skills.NewManager(&cfg.Skills, cfg.Workspace.Path, nil)
	if err != nil {
		slog.Warn("bridge daemon starting without skill routing", "error", err)
		skillsMgr = nil
	}

	d, err := daemon.New(daemon.Config{
		SocketPath:   socketPath,
		DefaultModel: model,
		Workspace:    cfg.Workspace.Path,
		Jobs:         bridgeJobsFromConfig(cfg.Cron),
	}, llmProvider, mgr, memMgr, skillsMgr, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to assemble bridge daemon: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting nexus bridge daemon", "model", model)
	return d.Run(ctx)
}

// bridgeJobsFromConfig translates the gateway's richer CronConfig (which
// also covers message and webhook job types, unrelated to this daemon) into
// the prompt-driven jobs the job scheduler understands. A job without
// message content to use as a prompt falls back to its name.
func bridgeJobsFromConfig(cronCfg config.CronConfig) []daemon.JobConfig {
	if !cronCfg.Enabled {
		return nil
	}
	jobs := make([]daemon.JobConfig, 0, len(cronCfg.Jobs))
	for _, j := range cronCfg.Jobs {
		if !j.Enabled {
			continue
		}
		schedule := scheduleStringFromConfig(j.Schedule)
		if schedule == "" {
			continue
		}
		prompt := j.Name
		if j.Message != nil && strings.TrimSpace(j.Message.Content) != "" {
			prompt = j.Message.Content
		}
		jobs = append(jobs, daemon.JobConfig{
			ID:       j.ID,
			Name:     j.Name,
			Prompt:   prompt,
			Schedule: schedule,
		})
	}
	return jobs
}

func scheduleStringFromConfig(s config.CronScheduleConfig) string {
	if strings.TrimSpace(s.Cron) != "" {
		return s.Cron
	}
	if s.Every > 0 {
		return fmt.Sprintf("every %ds", int64(s.Every.Seconds()))
	}
	return ""
}
