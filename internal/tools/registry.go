package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/forge/internal/llm"
)

// MaxToolNameLength bounds tool names to keep provider requests sane.
const MaxToolNameLength = 256

// Registry is a thread-safe name→tool map. Each registered tool's
// parameter schema is compiled once so arguments can be validated
// before dispatch.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, rejecting duplicates, invalid names, and
// uncompilable parameter schemas.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	def := tool.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(def.Name) > MaxToolNameLength {
		return fmt.Errorf("tool name exceeds %d characters", MaxToolNameLength)
	}

	schema, err := jsonschema.CompileString(def.Name+".json", string(def.ParametersJSON()))
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	r.tools[def.Name] = tool
	r.schemas[def.Name] = schema
	return nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// LLMTools exports every registered tool's schema in registration-
// independent (sorted-by-name) order.
func (r *Registry) LLMTools() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name].Definition().LLMTool())
	}
	return out
}

// ValidateArguments checks parsed arguments against the tool's
// compiled parameter schema.
func (r *Registry) ValidateArguments(name string, args map[string]any) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tool not registered: %s", name)
	}

	// jsonschema validates generic decoded JSON values.
	generic := make(map[string]any, len(args))
	for k, v := range args {
		generic[k] = v
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return nil
}
