package toolpipeline

import (
	"testing"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/mcp"
)

func TestSanitizeMCPPartLowersAndCollapsesSeparators(t *testing.T) {
	cases := map[string]string{
		"GitHub Server": "github_server",
		"server.one":    "server_one",
		"already_clean": "already_clean",
		"!!!":           "tool",
	}
	for input, want := range cases {
		if got := sanitizeMCPPart(input); got != want {
			t.Errorf("sanitizeMCPPart(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestMCPToolNameDisambiguatesCollisions(t *testing.T) {
	used := make(map[string]struct{})
	first := mcpToolName("server1", "search", used)
	second := mcpToolName("server1", "search", used)
	if first == second {
		t.Fatalf("expected distinct names for repeated registration, got %q twice", first)
	}
	if first != "mcp_server1_search" {
		t.Errorf("first name = %q, want mcp_server1_search", first)
	}
}

func TestDiscoverMCPToolsNoServersRegistersNothing(t *testing.T) {
	registry := agent.NewToolRegistry()
	mgr := mcp.NewManager(nil, nil)

	registered := DiscoverMCPTools(registry, mgr)
	if len(registered) != 0 {
		t.Errorf("expected no tools from an empty manager, got %v", registered)
	}
}
