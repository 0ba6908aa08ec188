package internal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestToolRegistryExecute(t *testing.T) {
	r := NewToolRegistry()
	r.Register(Tool{Name: "echo"}, func(input map[string]any) (string, error) {
		return "got: " + input["msg"].(string), nil
	})

	result := r.Execute("echo", map[string]any{"msg": "hi"})
	if !result.Success || result.Content != "got: hi" {
		t.Errorf("result = %+v", result)
	}
}

func TestToolRegistryUnknownTool(t *testing.T) {
	r := NewToolRegistry()
	result := r.Execute("nope", nil)
	if result.Success {
		t.Error("unknown tool reported success")
	}
	if result.Content != "Unknown tool: nope" {
		t.Errorf("content = %q", result.Content)
	}
}

func TestToolRegistryContainsFailures(t *testing.T) {
	r := NewToolRegistry()
	r.Register(Tool{Name: "fails"}, func(map[string]any) (string, error) {
		return "", errors.New("boom")
	})
	r.Register(Tool{Name: "panics"}, func(map[string]any) (string, error) {
		panic("unreachable input")
	})

	// 1. Returned errors become failed results
	result := r.Execute("fails", nil)
	if result.Success || result.Content != "boom" {
		t.Errorf("error result = %+v", result)
	}

	// 2. Panics are recovered into failed results
	result = r.Execute("panics", nil)
	if result.Success || !strings.Contains(result.Content, "unreachable input") {
		t.Errorf("panic result = %+v", result)
	}
}

func TestToolRegistrySpecsOrder(t *testing.T) {
	r := NewToolRegistry()
	r.Register(Tool{Name: "b"}, func(map[string]any) (string, error) { return "", nil })
	r.Register(Tool{Name: "a"}, func(map[string]any) (string, error) { return "", nil })
	r.Register(Tool{Name: "b", Description: "replaced"}, func(map[string]any) (string, error) { return "", nil })

	specs := r.Specs()
	if len(specs) != 2 {
		t.Fatalf("len(specs) = %d, want 2", len(specs))
	}
	if specs[0].Name != "b" || specs[1].Name != "a" {
		t.Errorf("order = %s, %s", specs[0].Name, specs[1].Name)
	}
	if specs[0].Description != "replaced" {
		t.Error("re-registration did not replace the tool definition")
	}
}

func TestReadFileTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello from disk"), 0600); err != nil {
		t.Fatal(err)
	}

	// 1. Reads file contents
	content, err := readFileTool(map[string]any{"path": path})
	if err != nil || content != "hello from disk" {
		t.Errorf("content = %q, err = %v", content, err)
	}

	// 2. Missing argument
	if _, err := readFileTool(map[string]any{}); err == nil {
		t.Error("expected error for missing path")
	}

	// 3. Oversized files are refused
	big := filepath.Join(dir, "big.bin")
	if err := os.WriteFile(big, make([]byte, maxToolFileBytes+1), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := readFileTool(map[string]any{"path": big}); err == nil {
		t.Error("expected error for oversized file")
	}

	// 4. Directories come back as a listing
	content, err = readFileTool(map[string]any{"path": dir})
	if err != nil || !strings.Contains(content, "notes.txt") {
		t.Errorf("dir listing = %q, err = %v", content, err)
	}
}

func TestBuiltinTools(t *testing.T) {
	r := NewToolRegistry()
	RegisterBuiltinTools(r)

	specs := r.Specs()
	names := map[string]bool{}
	for _, s := range specs {
		names[s.Name] = true
		if s.InputSchema["type"] != "object" {
			t.Errorf("tool %s schema type = %v", s.Name, s.InputSchema["type"])
		}
	}
	if !names["current_time"] || !names["read_file"] {
		t.Fatalf("builtins missing: %v", names)
	}

	result := r.Execute("current_time", nil)
	if !result.Success {
		t.Fatalf("current_time failed: %+v", result)
	}
	if _, err := time.ParseInLocation(DisplayTimeFormat, result.Content, time.Local); err != nil {
		t.Errorf("current_time output %q not parseable: %v", result.Content, err)
	}
}
