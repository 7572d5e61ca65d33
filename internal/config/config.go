// Package config handles emoroom configuration loading.
//
// Configuration comes from three layers, later layers winning: built-in
// defaults, a YAML file (with ${VAR} expansion), and a small set of
// well-known environment variables (AI_PROVIDER, USER_SECRETS, ...). The
// file is optional; a bare environment is enough to run a room.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // agent.timezone must resolve on hosts without zoneinfo

	"gopkg.in/yaml.v3"
)

// Provider names accepted in provider.name.
const (
	ProviderCloudflare = "cloudflare"
	ProviderOllama     = "ollama"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderAnthropic  = "anthropic"
)

// Room policies accepted in room.policy.
const (
	// PolicySingle admits at most one live connection to the room.
	PolicySingle = "single"
	// PolicyPerIdentity admits many connections, at most one per identity.
	PolicyPerIdentity = "per_identity"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config) is checked first.
// Then: ./config.yaml, ~/.config/emoroom/config.yaml, /etc/emoroom/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "emoroom", "config.yaml"))
	}

	paths = append(paths, "/etc/emoroom/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all emoroom configuration.
type Config struct {
	Listen     ListenConfig   `yaml:"listen"`
	DataDir    string         `yaml:"data_dir"`
	LogLevel   string         `yaml:"log_level"`
	LogFormat  string         `yaml:"log_format"` // text or json
	AdminToken string         `yaml:"admin_token"`
	Agent      AgentConfig    `yaml:"agent"`
	Room       RoomConfig     `yaml:"room"`
	Provider   ProviderConfig `yaml:"provider"`
}

// ListenConfig defines the HTTP server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AgentConfig describes the conversational agent itself.
type AgentConfig struct {
	Name              string        `yaml:"name"`
	Timezone          string        `yaml:"timezone"`
	EnableToolCalling bool          `yaml:"enable_tool_calling"`
	CallTimeout       time.Duration `yaml:"call_timeout"` // per provider call
}

// RoomConfig holds the session actor's limits and credential table.
type RoomConfig struct {
	ID               string        `yaml:"id"`
	Policy           string        `yaml:"policy"`
	MaxMessageLength int           `yaml:"max_message_length"`
	RateLimit        time.Duration `yaml:"rate_limit"`
	MemorySize       int           `yaml:"memory_size"`
	QueueSize        int           `yaml:"queue_size"`

	// UserSecrets is the raw JSON object {"name": "secret"}. It is kept
	// as text so an unparsable table is reported by the room rather than
	// refusing to start.
	UserSecrets string `yaml:"user_secrets"`
}

// ProviderConfig selects and configures the LLM backend.
type ProviderConfig struct {
	Name       string           `yaml:"name"`
	Cloudflare CloudflareConfig `yaml:"cloudflare"`
	Ollama     EndpointConfig   `yaml:"ollama"`
	OpenAI     EndpointConfig   `yaml:"openai"`
	Gemini     EndpointConfig   `yaml:"gemini"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
}

// EndpointConfig is shared by the HTTP chat-completion style backends.
// ToolModel, when set, replaces Model on calls that carry tools.
type EndpointConfig struct {
	Host      string `yaml:"host"`
	Model     string `yaml:"model"`
	ToolModel string `yaml:"tool_model"`
	APIKey    string `yaml:"api_key"`
}

// CloudflareConfig defines Workers AI REST settings.
type CloudflareConfig struct {
	BaseURL   string `yaml:"base_url"`
	AccountID string `yaml:"account_id"`
	APIToken  string `yaml:"api_token"`
	Model     string `yaml:"model"`
	ToolModel string `yaml:"tool_model"`
}

// AnthropicConfig defines Anthropic Messages API settings.
type AnthropicConfig struct {
	EndpointConfig `yaml:",inline"`
	MaxTokens      int `yaml:"max_tokens"`
}

// Default returns a configuration that runs a single-session room
// against Cloudflare Workers AI.
func Default() *Config {
	return &Config{
		Listen:    ListenConfig{Port: 8787},
		DataDir:   "./data",
		LogLevel:  "info",
		LogFormat: "text",
		Agent: AgentConfig{
			Name:              "EMO",
			Timezone:          "Asia/Shanghai",
			EnableToolCalling: true,
			CallTimeout:       60 * time.Second,
		},
		Room: RoomConfig{
			ID:               "ai-robot-main",
			Policy:           PolicySingle,
			MaxMessageLength: 4096,
			RateLimit:        time.Second,
			MemorySize:       100,
			QueueSize:        64,
		},
		Provider: ProviderConfig{
			Name: ProviderCloudflare,
			Cloudflare: CloudflareConfig{
				BaseURL:   "https://api.cloudflare.com/client/v4",
				Model:     "@cf/meta/llama-3-8b-instruct",
				ToolModel: "@cf/meta/llama-3.1-8b-instruct",
			},
			Ollama: EndpointConfig{
				Host:  "http://localhost:11434",
				Model: "llama3",
			},
			OpenAI: EndpointConfig{
				Host:  "https://api.openai.com",
				Model: "gpt-3.5-turbo",
			},
			Gemini: EndpointConfig{
				Host:  "https://generativelanguage.googleapis.com",
				Model: "gemini-2.5-flash",
			},
			Anthropic: AnthropicConfig{
				EndpointConfig: EndpointConfig{
					Host:  "https://api.anthropic.com",
					Model: "claude-sonnet-4-20250514",
				},
				MaxTokens: 1024,
			},
		},
	}
}

// Load reads configuration from a YAML file (with ${VAR} references
// expanded) on top of Default, then
// applies environment overrides and validates the result. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envRef matches a braced ${NAME} reference.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${NAME} references from the environment. Bare
// $ is left alone so bcrypt hashes and secrets containing $ survive.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// applyEnv overlays the environment variables the room has always
// understood. Empty values are ignored.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("USER_SECRETS", &c.Room.UserSecrets)
	str("AI_PROVIDER", &c.Provider.Name)
	str("AI_ROBOT_NAME", &c.Agent.Name)
	str("DEFAULT_TIMEZONE", &c.Agent.Timezone)
	str("LOG_LEVEL", &c.LogLevel)
	str("ADMIN_TOKEN", &c.AdminToken)
	str("CLOUDFLARE_ACCOUNT_ID", &c.Provider.Cloudflare.AccountID)
	str("CLOUDFLARE_API_TOKEN", &c.Provider.Cloudflare.APIToken)
	str("OLLAMA_HOST", &c.Provider.Ollama.Host)
	str("OLLAMA_MODEL", &c.Provider.Ollama.Model)
	str("OLLAMA_API_KEY", &c.Provider.Ollama.APIKey)
	str("OPENAI_HOST", &c.Provider.OpenAI.Host)
	str("OPENAI_MODEL", &c.Provider.OpenAI.Model)
	str("OPENAI_API_KEY", &c.Provider.OpenAI.APIKey)
	str("GEMINI_MODEL", &c.Provider.Gemini.Model)
	str("GEMINI_API_KEY", &c.Provider.Gemini.APIKey)
	str("ANTHROPIC_API_KEY", &c.Provider.Anthropic.APIKey)

	if v, ok := lookup("ENABLE_TOOL_CALLING"); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Agent.EnableToolCalling = b
		}
	}
}

// Validate reports the first configuration value that cannot work.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case ProviderCloudflare, ProviderOllama, ProviderOpenAI, ProviderGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q (valid: cloudflare, ollama, openai, gemini, anthropic)", c.Provider.Name)
	}
	switch c.Room.Policy {
	case PolicySingle, PolicyPerIdentity:
	default:
		return fmt.Errorf("unknown room policy %q (valid: single, per_identity)", c.Room.Policy)
	}
	if c.Room.ID == "" {
		return fmt.Errorf("room.id cannot be empty")
	}
	if c.Room.MaxMessageLength <= 0 {
		return fmt.Errorf("room.max_message_length must be > 0")
	}
	if c.Room.RateLimit < 0 {
		return fmt.Errorf("room.rate_limit must not be negative")
	}
	if c.Room.MemorySize <= 0 {
		return fmt.Errorf("room.memory_size must be > 0")
	}
	if c.Room.QueueSize <= 0 {
		return fmt.Errorf("room.queue_size must be > 0")
	}
	if c.Agent.Name == "" {
		return fmt.Errorf("agent.name cannot be empty")
	}
	if c.Agent.CallTimeout <= 0 {
		return fmt.Errorf("agent.call_timeout must be > 0")
	}
	if _, err := time.LoadLocation(c.Agent.Timezone); err != nil {
		return fmt.Errorf("agent.timezone: %w", err)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (valid: text, json)", c.LogFormat)
	}
	return nil
}

// DBPath is where the room's durable state lives.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "emoroom.db")
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Listen.Address, c.Listen.Port)
}
