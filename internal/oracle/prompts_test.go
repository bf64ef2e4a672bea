package oracle

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestPromptManager_DefaultsAndOverrides(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "prompts_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	err = os.WriteFile(filepath.Join(tempDir, "planner.md"), []byte("Custom planner for {{OS}}"), 0644)
	if err != nil {
		t.Fatal(err)
	}

	pm := NewPromptManager(tempDir)

	planner := pm.Get("planner")
	if !strings.Contains(planner, "Custom planner for "+runtime.GOOS) {
		t.Errorf("Override not applied or {{OS}} not expanded: %q", planner)
	}

	// No file on disk: the built-in default serves.
	dispatcher := pm.Get("dispatcher")
	if !strings.Contains(dispatcher, "atomic action") {
		t.Errorf("Default dispatcher prompt missing: %q", dispatcher)
	}
	if strings.Contains(dispatcher, "{{OS}}") {
		t.Error("{{OS}} placeholder not expanded in default prompt")
	}
}

func TestPromptManager_EveryRoleHasDefault(t *testing.T) {
	pm := NewPromptManager("")
	for _, role := range []string{"planner", "dispatcher", "grounder", "verifier"} {
		if pm.Get(role) == "" {
			t.Errorf("Role %q has no default prompt", role)
		}
	}
}
