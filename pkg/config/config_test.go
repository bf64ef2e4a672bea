package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	path := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Full(t *testing.T) {
	path := writeConfig(t, `
app:
  name: pilot
gateways:
  telegram:
    token: tg-token
    enabled: true
    allowed_users: ["12345"]
providers:
  planning:
    api_key: sk-plan
    model: gpt-4o
  grounding:
    api_key: sk-ground
    model: qwen-vl
    base_url: https://example.com/v1
surface:
  kind: browser
  start_url: https://example.com
limits:
  task_retries: 5
  stage_timeout: 90s
  busy_policy: queue
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.App.Name != "pilot" {
		t.Errorf("App name: got %q", cfg.App.Name)
	}
	gw, ok := cfg.GetGateway("telegram")
	if !ok || gw.Token != "tg-token" {
		t.Errorf("Telegram gateway not usable: %+v", gw)
	}
	if _, ok := cfg.GetGateway("discord"); ok {
		t.Error("Unconfigured gateway should not be usable")
	}

	p, ok := cfg.GetProvider("grounding")
	if !ok || p.Model != "qwen-vl" || p.BaseURL != "https://example.com/v1" {
		t.Errorf("Grounding provider: %+v", p)
	}

	if cfg.Surface.Kind != "browser" || cfg.Surface.StartURL != "https://example.com" {
		t.Errorf("Surface config: %+v", cfg.Surface)
	}
	if cfg.Limits.TaskRetries != 5 {
		t.Errorf("TaskRetries: got %d", cfg.Limits.TaskRetries)
	}
	if cfg.Limits.StageTimeout.Std() != 90*time.Second {
		t.Errorf("StageTimeout: got %v", cfg.Limits.StageTimeout.Std())
	}
	if cfg.Limits.BusyPolicy != "queue" {
		t.Errorf("BusyPolicy: got %q", cfg.Limits.BusyPolicy)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  planning:
    api_key: sk-plan
    model: gpt-4o
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.App.Name != "cappuccino" {
		t.Errorf("Default app name: got %q", cfg.App.Name)
	}
	if cfg.Surface.Kind != "x11" || cfg.Surface.Display != ":0.0" {
		t.Errorf("Default surface: %+v", cfg.Surface)
	}
	if cfg.Limits.MaxIterations != 30 || cfg.Limits.TaskRetries != 3 || cfg.Limits.Replans != 1 {
		t.Errorf("Default limits: %+v", cfg.Limits)
	}
	if cfg.Limits.StageTimeout.Std() != 2*time.Minute {
		t.Errorf("Default stage timeout: %v", cfg.Limits.StageTimeout.Std())
	}
	if cfg.Limits.BusyPolicy != "reject" {
		t.Errorf("Default busy policy: %q", cfg.Limits.BusyPolicy)
	}

	// The grounding role falls back to the planning provider.
	p, ok := cfg.GetProvider("grounding")
	if !ok || p.Model != "gpt-4o" {
		t.Errorf("Grounding fallback: %+v, ok=%v", p, ok)
	}
}

func TestLoadConfig_EnvFallbacks(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-tg-token")
	t.Setenv("OPENAI_API_KEY", "env-openai-key")

	path := writeConfig(t, `
gateways:
  telegram:
    enabled: true
providers:
  planning:
    model: gpt-4o
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	gw, ok := cfg.GetGateway("telegram")
	if !ok || gw.Token != "env-tg-token" {
		t.Errorf("Token env fallback failed: %+v", gw)
	}
	p, ok := cfg.GetProvider("planning")
	if !ok || p.APIKey != "env-openai-key" {
		t.Errorf("API key env fallback failed: %+v", p)
	}
}

func TestLoadConfig_BadDuration(t *testing.T) {
	path := writeConfig(t, `
limits:
  stage_timeout: ninety seconds
`)

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected an error for an unparsable duration")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
