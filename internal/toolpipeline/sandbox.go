package toolpipeline

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
)

// Level ranks how strictly a shell-executing tool call is isolated.
type Level int

const (
	// LevelNone runs the command as a plain subprocess with no isolation
	// beyond the timeout.
	LevelNone Level = iota
	// LevelRestricted isolates filesystem and network access but shares
	// the host kernel (e.g. a container backend).
	LevelRestricted
	// LevelFull runs the command in a fully isolated VM-grade sandbox.
	LevelFull
)

// Capabilities records what the host can actually provide, detected once
// at startup. The configured Level is clamped against this so a daemon
// asking for LevelFull on a host without a container runtime degrades to
// whatever the host actually supports instead of failing every call.
type Capabilities struct {
	Level Level
}

// probeCommand is overridden in tests to avoid depending on the host's
// installed tooling.
var probeCommand = func(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// DetectCapabilities probes the host for sandbox backends, preferring the
// strongest one available.
func DetectCapabilities() Capabilities {
	if probeCommand("firecracker") {
		return Capabilities{Level: LevelFull}
	}
	if probeCommand("docker") {
		return Capabilities{Level: LevelRestricted}
	}
	return Capabilities{Level: LevelNone}
}

// EffectiveLevel clamps configured against what the host actually
// supports. A configured level higher than the host's capability never
// silently escalates to it; it's capped at the probed ceiling.
func (c Capabilities) EffectiveLevel(configured Level) Level {
	if configured < c.Level {
		return configured
	}
	return c.Level
}

// Gate wraps a shell-executing tool with sandbox enforcement. When the
// effective level is non-trivial, calls are dispatched through Sandboxed
// instead of the plain tool; either way DefaultTimeout bounds the call
// unless the per-call arguments override it.
type Gate struct {
	Capabilities    Capabilities
	ConfiguredLevel Level
	DefaultTimeout  time.Duration

	Plain     agent.Tool // runs unsandboxed, subject only to the timeout
	Sandboxed agent.Tool // runs under sandbox enforcement (e.g. internal/tools/sandbox.Executor)
}

// NewGate builds a Gate from a probed Capabilities value, the operator's
// configured level, and the two tool variants it arbitrates between.
func NewGate(caps Capabilities, configured Level, defaultTimeout time.Duration, plain, sandboxed agent.Tool) *Gate {
	return &Gate{
		Capabilities:    caps,
		ConfiguredLevel: configured,
		DefaultTimeout:  defaultTimeout,
		Plain:           plain,
		Sandboxed:       sandboxed,
	}
}

func (g *Gate) Name() string        { return g.Plain.Name() }
func (g *Gate) Description() string { return g.Plain.Description() }
func (g *Gate) Schema() json.RawMessage {
	return g.Plain.Schema()
}

// Execute runs through the sandboxed tool when the effective level permits
// it and a sandboxed variant was supplied, otherwise falls back to Plain.
// DefaultTimeout always applies so a misbehaving command can't wedge a
// session's mailbox indefinitely.
func (g *Gate) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	timeout := g.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	effective := g.Capabilities.EffectiveLevel(g.ConfiguredLevel)
	if effective > LevelNone && g.Sandboxed != nil {
		return g.Sandboxed.Execute(ctx, params)
	}
	return g.Plain.Execute(ctx, params)
}
