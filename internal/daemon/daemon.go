// Package daemon assembles the bridge, session runtime, tool pipeline, and
// job scheduler into the long-lived local process the rest of this module
// only describes as separate subsystems.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/bridge"
	"github.com/haasonsaas/nexus/internal/jobscheduler"
	"github.com/haasonsaas/nexus/internal/mcp"
	"github.com/haasonsaas/nexus/internal/memory"
	"github.com/haasonsaas/nexus/internal/sessionrt"
	"github.com/haasonsaas/nexus/internal/skills"
	"github.com/haasonsaas/nexus/internal/tools/exec"
	"github.com/haasonsaas/nexus/internal/tools/files"
	"github.com/haasonsaas/nexus/internal/tools/sandbox"
	"github.com/haasonsaas/nexus/internal/tools/websearch"
	"github.com/haasonsaas/nexus/internal/toolpipeline"
)

// Config configures a Daemon. It is intentionally its own small surface
// rather than an extension of the teacher's large internal/config.Config,
// which is shaped around the gRPC/HTTP gateway this package does not
// replace; threading bridge/session/scheduler settings through that
// config's loader and migration machinery is future work, not attempted
// here.
type Config struct {
	// DataDir roots the vault, pairing store, and session/job state.
	DataDir string
	// SocketPath is the Unix-domain socket the bridge listens on. Empty
	// means DataDir/bridge.sock.
	SocketPath string
	// DefaultModel is the model new sessions start with.
	DefaultModel string
	// SandboxLevel is the operator-configured sandbox level; it is
	// clamped against what the host actually supports.
	SandboxLevel toolpipeline.Level
	// BashTimeout bounds a single bash tool call.
	BashTimeout time.Duration
	// Workspace roots the bash tool's working directory and the directory
	// scope read_file/write_file/edit_file are confined to. Empty means
	// DataDir/workspace.
	Workspace string
	// SystemPrompt seeds every new session's system message. Empty uses
	// sessionrt's own default.
	SystemPrompt string
	// MaxTurnRounds bounds the agent turn loop per Chat/ChatStream call. 0
	// uses sessionrt's own default.
	MaxTurnRounds int
	// MaxConcurrentTurns bounds how many provider calls run at once across
	// every session. 0 means 1 (strictly serial).
	MaxConcurrentTurns int
	// Jobs are the scheduled jobs to register at startup.
	Jobs []JobConfig
}

// JobConfig describes one scheduled job before it's parsed into a
// jobscheduler.Job.
type JobConfig struct {
	ID       string
	Name     string
	Prompt   string
	Schedule string
	Timeout  time.Duration
}

// Daemon owns every long-lived subsystem: the IPC bridge server, the
// session actor runtime, the tool dispatch pipeline, and the job
// scheduler.
type Daemon struct {
	cfg Config
	log *slog.Logger

	vault     *bridge.Vault
	manager   *bridge.Manager
	runtime   *sessionrt.Runtime
	service   *bridge.Service
	server    *bridge.Server
	scheduler *jobscheduler.Scheduler
	pipeline  *toolpipeline.Pipeline
	listener  net.Listener
}

// New assembles a Daemon from cfg. provider answers chat completions for
// every session and scheduled job; mgr (optional) supplies external
// MCP-discovered tools; memMgr (optional) backs memory_search/memory_stats;
// skillsMgr (optional) supplies the skill catalog consulted for prompt-time
// routing.
func New(cfg Config, provider agent.LLMProvider, mgr *mcp.Manager, memMgr *memory.Manager, skillsMgr *skills.Manager, log *slog.Logger) (*Daemon, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default data dir: %w", err)
		}
		cfg.DataDir = dir
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if cfg.Workspace == "" {
		cfg.Workspace = filepath.Join(cfg.DataDir, "workspace")
	}
	if err := os.MkdirAll(cfg.Workspace, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = filepath.Join(cfg.DataDir, "bridge.sock")
	}

	vault := bridge.NewVault(cfg.DataDir)
	manager := bridge.NewManager(bridge.ManagerConfig{}, log)

	adapter := sessionrt.NewLLMAdapter(provider)
	pipeline := buildPipeline(cfg, mgr, log)

	actorCfg := sessionrt.ActorConfig{
		SystemPrompt:  cfg.SystemPrompt,
		Pipeline:      pipeline,
		Skills:        skillsMgr,
		TurnGate:      sessionrt.NewTurnGate(cfg.MaxConcurrentTurns),
		MaxRounds:     cfg.MaxTurnRounds,
	}
	if memMgr != nil {
		actorCfg.Memory = memMgr
	}

	runtime := sessionrt.NewRuntime(sessionrt.SupervisorConfig{RestartOnPanic: true}, cfg.DefaultModel, adapter, actorCfg, log)

	service := bridge.NewService(vault, manager, runtime, log)

	listener, err := listenUnix(socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on bridge socket: %w", err)
	}
	server := bridge.NewServer(listener, service, manager, log)

	scheduler := jobscheduler.NewScheduler(runtime, log)
	for _, jc := range cfg.Jobs {
		sched, err := jobscheduler.ParseSchedule(jc.Schedule)
		if err != nil {
			log.Warn("skipping job with invalid schedule", "job_id", jc.ID, "error", err)
			continue
		}
		job := jobscheduler.NewJob(jc.ID, jc.Name, jc.Prompt, sched, jc.Timeout)
		if err := scheduler.Register(job); err != nil {
			log.Warn("failed to register job", "job_id", jc.ID, "error", err)
		}
	}

	return &Daemon{
		cfg:       cfg,
		log:       log.With("component", "daemon"),
		vault:     vault,
		manager:   manager,
		runtime:   runtime,
		service:   service,
		server:    server,
		scheduler: scheduler,
		pipeline:  pipeline,
		listener:  listener,
	}, nil
}

// buildPipeline wires the teacher's existing tools (bash, file read/write/
// edit, web fetch/search, MCP bridges) and the hardcoded filter defaults
// into a single Pipeline. bash is dispatched through a Gate so a host with
// firecracker/docker on PATH runs it sandboxed while a bare host still
// falls back to running it directly, both behind the same filter/timeout.
func buildPipeline(cfg Config, mgr *mcp.Manager, log *slog.Logger) *toolpipeline.Pipeline {
	registry := agent.NewToolRegistry()
	pipeline := toolpipeline.NewPipeline(registry)

	bashTimeout := cfg.BashTimeout
	if bashTimeout <= 0 {
		bashTimeout = 30 * time.Second
	}

	execManager := exec.NewManager(cfg.Workspace)
	plainBash := exec.NewExecTool("bash", execManager)

	var sandboxedBash agent.Tool
	if sandboxExecutor, err := sandbox.NewExecutor(sandbox.WithWorkspaceRoot(cfg.Workspace)); err != nil {
		log.Warn("sandboxed bash unavailable, falling back to plain exec", "error", err)
	} else {
		sandboxedBash = &bashSandboxAdapter{executor: sandboxExecutor}
	}

	bashGate := toolpipeline.NewGate(toolpipeline.DetectCapabilities(), cfg.SandboxLevel, bashTimeout, plainBash, sandboxedBash)
	registry.Register(bashGate)
	bashFilter, err := toolpipeline.Compile(toolpipeline.Filter{})
	if err != nil {
		log.Warn("failed to compile bash filter", "error", err)
	} else {
		if err := bashFilter.MergeHardcoded(toolpipeline.BashDenySubstrings, toolpipeline.BashDenyPatterns); err != nil {
			log.Warn("failed to merge bash hardcoded filter", "error", err)
		}
		pipeline.ConfigureFilter(bashGate.Name(), "command", bashFilter)
	}

	filesCfg := files.Config{Workspace: cfg.Workspace}
	readTool := files.NewReadTool(filesCfg)
	writeTool := files.NewWriteTool(filesCfg)
	editTool := files.NewEditTool(filesCfg)
	for _, t := range []agent.Tool{readTool, writeTool, editTool} {
		registry.Register(t)
		pipeline.ConfigurePathScope(t.Name(), []string{cfg.Workspace})
	}

	fetchTool := websearch.NewWebFetchTool(&websearch.FetchConfig{})
	registry.Register(fetchTool)
	fetchFilter, err := toolpipeline.Compile(toolpipeline.Filter{})
	if err != nil {
		log.Warn("failed to compile web_fetch filter", "error", err)
	} else {
		if err := fetchFilter.MergeHardcoded(toolpipeline.WebFetchDenySubstrings, toolpipeline.WebFetchDenyPatterns); err != nil {
			log.Warn("failed to merge web_fetch hardcoded filter", "error", err)
		}
		pipeline.ConfigureFilter(fetchTool.Name(), "url", fetchFilter)
	}

	searchTool := websearch.NewWebSearchTool(&websearch.Config{})
	registry.Register(searchTool)

	if mgr != nil {
		registered := toolpipeline.DiscoverMCPTools(registry, mgr)
		log.Info("registered MCP tools", "count", len(registered))
	}

	return pipeline
}

// bashSandboxAdapter translates exec.ExecTool's command/cwd/timeout_seconds
// wire shape into sandbox.Executor's language/code ExecuteParams, so the
// two can be paired as a Gate's Plain/Sandboxed variants of one "bash"
// tool despite their independently evolved schemas. Only Execute is ever
// called on it: Gate delegates Name/Description/Schema to Plain.
type bashSandboxAdapter struct {
	executor *sandbox.Executor
}

func (b *bashSandboxAdapter) Name() string             { return "bash" }
func (b *bashSandboxAdapter) Description() string      { return b.executor.Description() }
func (b *bashSandboxAdapter) Schema() json.RawMessage  { return b.executor.Schema() }

func (b *bashSandboxAdapter) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var cmd struct {
		Command        string `json:"command"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(params, &cmd); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid bash arguments: %v", err), IsError: true}, nil
	}

	translated, err := json.Marshal(sandbox.ExecuteParams{
		Language: "bash",
		Code:     cmd.Command,
		Timeout:  cmd.TimeoutSeconds,
	})
	if err != nil {
		return nil, err
	}
	return b.executor.Execute(ctx, translated)
}

// Run starts the bridge server, the health scanner, and the job
// scheduler, blocking until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- d.server.Serve(ctx) }()
	go d.manager.Run(ctx)
	go d.scheduler.Run(ctx)

	select {
	case <-ctx.Done():
		d.runtime.Shutdown()
		return nil
	case err := <-errCh:
		d.runtime.Shutdown()
		return err
	}
}

// Pipeline exposes the configured tool pipeline, e.g. for an Actor that
// wants to dispatch tool calls through it.
func (d *Daemon) Pipeline() *toolpipeline.Pipeline {
	return d.pipeline
}

// DefaultDataDir returns ~/.nexus/bridge, matching the CLI's existing
// ~/.nexus/{cache,plugins,skills,packs} convention (see cmd/nexus/config.go
// and internal/config/config.go's CacheDir default).
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nexus", "bridge"), nil
}

func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return listener, nil
}
