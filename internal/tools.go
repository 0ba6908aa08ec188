package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tool is a declared capability advertised to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolResult is the outcome of one tool invocation. Failures are results,
// not errors: the loop always has something to send back to the model.
type ToolResult struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}

// ToolFunc executes a tool. Returned errors and panics are both converted
// into failed ToolResults by the registry.
type ToolFunc func(input map[string]any) (string, error)

type registeredTool struct {
	spec Tool
	run  ToolFunc
}

// ToolRegistry holds the process's registered tools.
type ToolRegistry struct {
	mu    sync.Mutex
	tools map[string]registeredTool
	order []string
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]registeredTool)}
}

// Register adds or replaces a tool under its declared name.
func (r *ToolRegistry) Register(spec Tool, run ToolFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; !exists {
		r.order = append(r.order, spec.Name)
	}
	r.tools[spec.Name] = registeredTool{spec: spec, run: run}
}

// Specs returns the declared tools in registration order.
func (r *ToolRegistry) Specs() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	specs := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].spec)
	}
	return specs
}

// Execute runs the named tool. Unknown names, returned errors, and panics all
// become failed results; nothing escapes to the caller.
func (r *ToolRegistry) Execute(name string, input map[string]any) (result ToolResult) {
	r.mu.Lock()
	tool, ok := r.tools[name]
	r.mu.Unlock()
	if !ok {
		return ToolResult{Success: false, Content: fmt.Sprintf("Unknown tool: %s", name)}
	}

	defer func() {
		if rec := recover(); rec != nil {
			Log.Error().Str("tool", name).Any("panic", rec).Msg("tool panicked")
			result = ToolResult{Success: false, Content: fmt.Sprintf("tool %s failed: %v", name, rec)}
		}
	}()

	content, err := tool.run(input)
	if err != nil {
		return ToolResult{Success: false, Content: err.Error()}
	}
	return ToolResult{Success: true, Content: content}
}

// maxToolFileBytes caps what read_file will return so a stray path to a huge
// file cannot blow up the request that carries the result.
const maxToolFileBytes = 256 * 1024

// RegisterBuiltinTools installs the stock tools every chat session gets.
func RegisterBuiltinTools(r *ToolRegistry) {
	r.Register(Tool{
		Name:        "current_time",
		Description: "Returns the current date and time in the user's local timezone.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}, func(input map[string]any) (string, error) {
		return FormatLocal(time.Now()), nil
	})

	r.Register(Tool{
		Name:        "read_file",
		Description: "Reads a text file from the local filesystem and returns its contents.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Absolute or home-relative path of the file to read.",
				},
			},
			"required": []any{"path"},
		},
	}, readFileTool)
}

func readFileTool(input map[string]any) (string, error) {
	raw, _ := input["path"].(string)
	if raw == "" {
		return "", fmt.Errorf("read_file requires a path")
	}
	path := raw
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return "", err
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		sort.Strings(names)
		return fmt.Sprintf("%s is a directory containing: %s", raw, strings.Join(names, ", ")), nil
	}
	if info.Size() > maxToolFileBytes {
		return "", fmt.Errorf("file %s is too large (%d bytes, limit %d)", raw, info.Size(), maxToolFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
