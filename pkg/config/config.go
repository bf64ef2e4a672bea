package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Gateways  map[string]GatewayConfig  `yaml:"gateways"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Surface   SurfaceConfig             `yaml:"surface"`
	Limits    LimitsConfig              `yaml:"limits"`
	Memory    MemoryConfig              `yaml:"memory"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Workspace string `yaml:"workspace"`
}

type GatewayConfig struct {
	Token        string   `yaml:"token"`
	Enabled      bool     `yaml:"enabled"`
	AllowedUsers []string `yaml:"allowed_users"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type SurfaceConfig struct {
	Kind     string `yaml:"kind"` // x11 or browser
	Display  string `yaml:"display"`
	StartURL string `yaml:"start_url"`
}

type LimitsConfig struct {
	MaxIterations    int      `yaml:"max_iterations"`
	TaskRetries      int      `yaml:"task_retries"`
	DispatchAttempts int      `yaml:"dispatch_attempts"`
	SurfaceAttempts  int      `yaml:"surface_attempts"`
	Replans          int      `yaml:"replans"`
	StageTimeout     Duration `yaml:"stage_timeout"`
	TaskTimeout      Duration `yaml:"task_timeout"`
	BusyPolicy       string   `yaml:"busy_policy"` // reject or queue
	OracleRPS        float64  `yaml:"oracle_rps"`
}

type MemoryConfig struct {
	Path string `yaml:"path"`
}

// Duration parses "90s" / "10m" style YAML values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %v", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoadConfig reads and validates a YAML config file. Missing tokens and
// API keys fall back to environment variables so secrets can live in .env.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %v", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %v", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvFallbacks()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "cappuccino"
	}
	if c.App.Workspace == "" {
		c.App.Workspace = "./workspace"
	}
	if c.Surface.Kind == "" {
		c.Surface.Kind = "x11"
	}
	if c.Surface.Display == "" {
		c.Surface.Display = ":0.0"
	}
	if c.Limits.MaxIterations == 0 {
		c.Limits.MaxIterations = 30
	}
	if c.Limits.TaskRetries == 0 {
		c.Limits.TaskRetries = 3
	}
	if c.Limits.DispatchAttempts == 0 {
		c.Limits.DispatchAttempts = 3
	}
	if c.Limits.Replans == 0 {
		c.Limits.Replans = 1
	}
	if c.Limits.StageTimeout == 0 {
		c.Limits.StageTimeout = Duration(2 * time.Minute)
	}
	if c.Limits.TaskTimeout == 0 {
		c.Limits.TaskTimeout = Duration(10 * time.Minute)
	}
	if c.Limits.BusyPolicy == "" {
		c.Limits.BusyPolicy = "reject"
	}
	if c.Limits.OracleRPS == 0 {
		c.Limits.OracleRPS = 1
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "./cappuccino.db"
	}
}

func (c *Config) applyEnvFallbacks() {
	if c.Gateways == nil {
		c.Gateways = map[string]GatewayConfig{}
	}
	for name, gw := range c.Gateways {
		if gw.Token == "" {
			gw.Token = os.Getenv(strings.ToUpper(name) + "_TOKEN")
			c.Gateways[name] = gw
		}
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, p := range c.Providers {
		if p.APIKey == "" {
			p.APIKey = os.Getenv(strings.ToUpper(name) + "_API_KEY")
		}
		if p.APIKey == "" {
			p.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		c.Providers[name] = p
	}
}

// GetProvider returns the named provider ("planning" or "grounding"); the
// grounding role falls back to the planning provider when unset.
func (c *Config) GetProvider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	if !ok && name == "grounding" {
		p, ok = c.Providers["planning"]
	}
	return p, ok && p.Model != ""
}

// GetGateway returns a gateway config if enabled and usable.
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[name]
	if ok && gw.Enabled && gw.Token != "" {
		return gw, true
	}
	return GatewayConfig{}, false
}
