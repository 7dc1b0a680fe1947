// Package tools describes the tools an analyst model may call.
// The orchestrator dispatches the calls itself; this package only carries
// their definitions and the eino tool infos bound to tool-calling models.
package tools

import (
	"sort"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// ToolID identifies a built-in tool
type ToolID string

// ToolCategory represents the category of a tool
type ToolCategory string

// Tool categories
const (
	CategoryDatabase      ToolCategory = "database"
	CategoryVisualization ToolCategory = "visualization"
)

// ToolDefinition describes a built-in tool
type ToolDefinition struct {
	ID          ToolID       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    ToolCategory `json:"category"`
	Dangerous   bool         `json:"dangerous"` // Whether this tool can modify data
	// Params is the JSON argument schema advertised to the model.
	Params map[string]*schema.ParameterInfo `json:"params"`
}

// ToolInfo converts the definition into the form eino chat models bind.
func (d ToolDefinition) ToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        d.Name,
		Desc:        d.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(d.Params),
	}
}

// Registry manages built-in tool definitions
type Registry struct {
	definitions map[ToolID]ToolDefinition
	mu          sync.RWMutex
}

// Global registry instance
var globalRegistry = &Registry{
	definitions: make(map[ToolID]ToolDefinition),
}

// Register registers a tool definition, replacing any earlier one with the same ID.
func Register(def ToolDefinition) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	if def.Name == "" {
		def.Name = string(def.ID)
	}
	globalRegistry.definitions[def.ID] = def
}

// GetToolDefinition returns a tool definition by ID
func GetToolDefinition(id ToolID) (ToolDefinition, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	def, ok := globalRegistry.definitions[id]
	return def, ok
}

// ListToolDefinitions returns all available tool definitions sorted by category and name
func ListToolDefinitions() []ToolDefinition {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolDefinition, 0, len(globalRegistry.definitions))
	for _, def := range globalRegistry.definitions {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Name < result[j].Name
	})

	return result
}

// ListSafeTools returns only non-dangerous tools (read-only operations)
func ListSafeTools() []ToolDefinition {
	var result []ToolDefinition
	for _, def := range ListToolDefinitions() {
		if !def.Dangerous {
			result = append(result, def)
		}
	}
	return result
}

// ToolInfos returns eino tool infos for the given IDs, or for every safe tool when ids is empty.
func ToolInfos(ids ...ToolID) []*schema.ToolInfo {
	var defs []ToolDefinition
	if len(ids) == 0 {
		defs = ListSafeTools()
	} else {
		for _, id := range ids {
			if def, ok := GetToolDefinition(id); ok {
				defs = append(defs, def)
			}
		}
	}
	infos := make([]*schema.ToolInfo, 0, len(defs))
	for _, def := range defs {
		infos = append(infos, def.ToolInfo())
	}
	return infos
}
