package toolpipeline

import (
	"sort"
	"strconv"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/mcp"
)

// DiscoverMCPTools registers every tool currently exposed by mgr's connected
// servers into registry as a Pipeline-visible agent.Tool, so MCP-discovered
// tools go through the same filter/schema/path-scope checks as any built-in
// one. Re-running it after a server reconnects simply re-registers its
// tools under the same deterministic names.
func DiscoverMCPTools(registry *agent.ToolRegistry, mgr *mcp.Manager) []string {
	all := mgr.AllTools()
	serverIDs := make([]string, 0, len(all))
	for id := range all {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)

	used := make(map[string]struct{})
	var registered []string
	for _, serverID := range serverIDs {
		tools := all[serverID]
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
		for _, tool := range tools {
			name := mcpToolName(serverID, tool.Name, used)
			registry.Register(mcp.NewToolBridge(mgr, serverID, tool, name))
			registered = append(registered, name)
		}
	}
	return registered
}

// mcpToolName builds a deterministic, filesystem- and JSON-key-safe tool
// name from a server ID and the tool's own name, disambiguating collisions
// (two servers exposing a tool of the same name) with a numeric suffix.
func mcpToolName(serverID, toolName string, used map[string]struct{}) string {
	base := "mcp_" + sanitizeMCPPart(serverID) + "_" + sanitizeMCPPart(toolName)
	name := base
	for i := 2; ; i++ {
		if _, exists := used[name]; !exists {
			break
		}
		name = base + "_" + strconv.Itoa(i)
	}
	used[name] = struct{}{}
	return name
}

func sanitizeMCPPart(value string) string {
	var b strings.Builder
	lastWasSep := false
	for _, r := range strings.ToLower(value) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastWasSep = false
			continue
		}
		if !lastWasSep {
			b.WriteByte('_')
			lastWasSep = true
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}
