package toolpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/coreerrors"
)

// FilteredField names which JSON field of a tool's arguments the input
// filter checks. Most filterable tools have exactly one primary field
// (bash's "command", read_file's "path", web_fetch's "url").
type FilteredField struct {
	ToolName  string
	FieldName string
}

// Pipeline wraps a agent.ToolRegistry with the deny/allow filter pipeline,
// directory scoping, and JSON-Schema argument validation, applied before
// every dispatch to Execute.
type Pipeline struct {
	registry *agent.ToolRegistry

	mu           sync.RWMutex
	filters      map[string]*CompiledFilter // tool name -> compiled filter
	filterFields map[string]string          // tool name -> filtered field name
	schemas      map[string]*jsonschema.Schema
	allowedDirs  map[string][]string // tool name -> scoped directories (path-taking tools)
}

// NewPipeline wraps registry. Tools register their own Tool implementation
// with registry as before; filters/schemas/path scopes are attached
// separately via Configure so adding a filter never requires touching the
// underlying agent.ToolRegistry.
func NewPipeline(registry *agent.ToolRegistry) *Pipeline {
	return &Pipeline{
		registry:     registry,
		filters:      make(map[string]*CompiledFilter),
		filterFields: make(map[string]string),
		schemas:      make(map[string]*jsonschema.Schema),
		allowedDirs:  make(map[string][]string),
	}
}

// Tools returns every tool currently registered, for advertising tool
// schemas to a provider on each turn.
func (p *Pipeline) Tools() []agent.Tool {
	return p.registry.AsLLMTools()
}

// ConfigureFilter attaches a compiled input filter to toolName, checked
// against the named JSON field of every call's arguments.
func (p *Pipeline) ConfigureFilter(toolName, fieldName string, filter *CompiledFilter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters[toolName] = filter
	p.filterFields[toolName] = fieldName
}

// ConfigurePathScope restricts a path-taking tool's fieldName argument to
// one of allowedDirs, checked after filter rules and after path resolution.
func (p *Pipeline) ConfigurePathScope(toolName string, allowedDirs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedDirs[toolName] = allowedDirs
}

// ConfigureSchema compiles schemaJSON and attaches it to toolName. Calls
// with arguments failing this schema are rejected before the filter even
// runs, since a malformed call can't be meaningfully filtered.
func (p *Pipeline) ConfigureSchema(toolName string, schemaJSON string) error {
	schema, err := jsonschema.CompileString(toolName+"-args", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", toolName, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.schemas[toolName] = schema
	return nil
}

// Execute validates params against toolName's schema (if any), runs the
// filter pipeline and path scope check on its filtered field (if any), and
// only then dispatches to the underlying registry.
func (p *Pipeline) Execute(ctx context.Context, toolName string, params json.RawMessage) (*agent.ToolResult, error) {
	tool, ok := p.registry.Get(toolName)
	if !ok {
		return nil, coreerrors.NotFound(toolName)
	}

	p.mu.RLock()
	schema := p.schemas[toolName]
	filter := p.filters[toolName]
	fieldName := p.filterFields[toolName]
	allowedDirs := p.allowedDirs[toolName]
	p.mu.RUnlock()

	var decoded map[string]any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindDenied, "tool arguments must be a JSON object", err)
	}

	if schema != nil {
		if err := schema.Validate(decoded); err != nil {
			return nil, coreerrors.Wrap(coreerrors.KindDenied, "tool arguments failed schema validation", err)
		}
	}

	if filter != nil && fieldName != "" {
		value, _ := decoded[fieldName].(string)
		if err := filter.Check(value, toolName, fieldName); err != nil {
			return nil, err
		}

		if len(allowedDirs) > 0 {
			real, err := ResolveRealPath(value)
			if err != nil {
				return nil, coreerrors.Wrap(coreerrors.KindDenied, "could not resolve path", err)
			}
			if err := CheckPathAllowed(real, allowedDirs); err != nil {
				return nil, err
			}
		}
	}

	return tool.Execute(ctx, params)
}
