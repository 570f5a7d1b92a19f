// Package config implements the engine's configuration surface: YAML service
// config plus `.env`/environment expansion and dotted CLI overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// OpConfig is one entry in the service config's op table.
type OpConfig struct {
	Backend        string         `mapstructure:"backend"`
	MaxRetries     int            `mapstructure:"max_retries"`
	RaiseException *bool          `mapstructure:"raise_exception"`
	Language       string         `mapstructure:"language"`
	PromptFile     string         `mapstructure:"prompt_file"`
	LLM            string         `mapstructure:"llm"`
	EmbeddingModel string         `mapstructure:"embedding_model"`
	VectorStore    string         `mapstructure:"vector_store"`
	Params         map[string]any `mapstructure:"params"`
}

// FlowConfig describes one flow entry: its textual DSL content plus any
// declared tool metadata.
type FlowConfig struct {
	Content     string `mapstructure:"content"`
	Description string `mapstructure:"description"`
}

// ProviderConfig is a generic named-backend entry (used for llms,
// embedders, vector_stores) — backend selects the registry constructor,
// every other key is passed through as free-form params.
type ProviderConfig struct {
	Backend string         `mapstructure:"backend"`
	Params  map[string]any `mapstructure:",remain"`
}

// ServerConfig configures the HTTP and MCP service adapters.
type ServerConfig struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	MCPAddr   string `mapstructure:"mcp_addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Config is the root service configuration.
type Config struct {
	AppID        string                    `mapstructure:"app_id"`
	Language     string                    `mapstructure:"language"`
	PoolSize     int                       `mapstructure:"pool_size"`
	LLMs         map[string]ProviderConfig `mapstructure:"llms"`
	Embedders    map[string]ProviderConfig `mapstructure:"embedders"`
	VectorStores map[string]ProviderConfig `mapstructure:"vector_stores"`
	Ops          map[string]OpConfig       `mapstructure:"ops"`
	Flows        map[string]FlowConfig     `mapstructure:"flows"`
	Server       ServerConfig              `mapstructure:"server"`
}

// envPattern matches `${VAR}` and `${VAR:-default}`.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnvString substitutes `${VAR}`/`${VAR:-default}` references in s.
func expandEnvString(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

// expandValue walks a decoded YAML value tree and expands env references in
// every string leaf.
func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = expandValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = expandValue(vv)
		}
		return out
	default:
		return v
	}
}

// LoadEnv discovers a .env file, walking up to 5 parent directories from
// dir, and loads the first one found into the process environment.
func LoadEnv(dir string) error {
	cur := dir
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(cur, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return godotenv.Load(candidate)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return nil
}

// Load reads, env-expands, and decodes a YAML config file into a Config.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	expanded := expandValue(generic).(map[string]any)

	var cfg Config
	if err := decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &cfg, nil
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// ApplyOverrides layers dotted `key.path=value` CLI overrides onto cfg
// (e.g. "server.http_addr=:9000", "pool_size=32").
func ApplyOverrides(cfg *Config, overrides []string) error {
	if len(overrides) == 0 {
		return nil
	}

	var generic map[string]any
	if err := decode(cfg, &generic); err != nil {
		// cfg -> generic is a best-effort reverse path; fall back to
		// re-marshalling through YAML if mapstructure can't invert it.
		b, mErr := yaml.Marshal(cfg)
		if mErr != nil {
			return fmt.Errorf("config: snapshot for overrides: %w", err)
		}
		if err := yaml.Unmarshal(b, &generic); err != nil {
			return fmt.Errorf("config: snapshot for overrides: %w", err)
		}
	}

	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		if !ok {
			return fmt.Errorf("config: override %q missing '='", o)
		}
		if err := setDotted(generic, strings.Split(key, "."), coerce(value)); err != nil {
			return fmt.Errorf("config: override %q: %w", o, err)
		}
	}

	*cfg = Config{}
	return decode(generic, cfg)
}

func setDotted(m map[string]any, path []string, value any) error {
	if len(path) == 0 {
		return fmt.Errorf("empty key")
	}
	key := path[0]
	if len(path) == 1 {
		m[key] = value
		return nil
	}
	next, ok := m[key].(map[string]any)
	if !ok {
		next = make(map[string]any)
		m[key] = next
	}
	return setDotted(next, path[1:], value)
}

// coerce converts a raw override string into a bool/int/float when it looks
// like one, else leaves it as a string.
func coerce(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
