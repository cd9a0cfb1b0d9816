package toolpipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
)

type fakeGateTool struct {
	name   string
	called bool
}

func (t *fakeGateTool) Name() string            { return t.name }
func (t *fakeGateTool) Description() string     { return "fake" }
func (t *fakeGateTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t *fakeGateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	t.called = true
	return &agent.ToolResult{Content: t.name}, nil
}

func TestEffectiveLevelClampsToHostCapability(t *testing.T) {
	caps := Capabilities{Level: LevelRestricted}
	if got := caps.EffectiveLevel(LevelFull); got != LevelRestricted {
		t.Errorf("expected clamp to LevelRestricted, got %v", got)
	}
	if got := caps.EffectiveLevel(LevelNone); got != LevelNone {
		t.Errorf("expected configured LevelNone to stay None, got %v", got)
	}
}

func TestGateUsesSandboxedWhenEffectiveLevelNonTrivial(t *testing.T) {
	plain := &fakeGateTool{name: "plain"}
	sandboxed := &fakeGateTool{name: "sandboxed"}
	g := NewGate(Capabilities{Level: LevelRestricted}, LevelRestricted, time.Second, plain, sandboxed)

	result, err := g.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Content != "sandboxed" || !sandboxed.called || plain.called {
		t.Errorf("expected sandboxed variant to run, got %q", result.Content)
	}
}

func TestGateFallsBackToPlainWhenHostLacksCapability(t *testing.T) {
	plain := &fakeGateTool{name: "plain"}
	sandboxed := &fakeGateTool{name: "sandboxed"}
	g := NewGate(Capabilities{Level: LevelNone}, LevelFull, time.Second, plain, sandboxed)

	result, err := g.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Content != "plain" || !plain.called || sandboxed.called {
		t.Errorf("expected plain variant to run, got %q", result.Content)
	}
}

func TestDetectCapabilitiesPrefersStrongestBackend(t *testing.T) {
	orig := probeCommand
	defer func() { probeCommand = orig }()

	probeCommand = func(name string) bool { return name == "docker" }
	if caps := DetectCapabilities(); caps.Level != LevelRestricted {
		t.Errorf("expected LevelRestricted when only docker is present, got %v", caps.Level)
	}

	probeCommand = func(name string) bool { return false }
	if caps := DetectCapabilities(); caps.Level != LevelNone {
		t.Errorf("expected LevelNone when no backend is present, got %v", caps.Level)
	}
}
