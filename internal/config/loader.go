package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load builds a Config the way the teacher's Loader does: defaults, then an
// optional YAML file, then environment variables, which take highest
// priority. path may be empty, in which case only defaults and env vars
// apply.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Namespaces.Default == "" {
		ns, err := mintNamespace()
		if err != nil {
			return nil, fmt.Errorf("mint default namespace: %w", err)
		}
		cfg.Namespaces.Default = ns
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is Load, panicking on error, for callers where a config failure
// is always fatal.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Environment: Development,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "10s",
		},
		GraphStore: GraphStore{
			Backend: "memory",
			URI:     "bolt://localhost:7687",
			User:    "neo4j",
		},
		LLM: LLM{
			Model: "claude-3-5-sonnet-latest",
		},
		Namespaces: Namespaces{
			Root: "root",
		},
		Schema: Schema{
			IncludeRoot: true,
		},
		Transport: "sse",
		Logging: Logging{
			Level: "info",
		},
	}
}

func applyEnvOverrides(c *Config) {
	if v := getEnvString("ENVIRONMENT", ""); v != "" {
		c.Environment = Environment(v)
	}
	c.Server.Host = getEnvString("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.ShutdownTimeout = getEnvString("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.GraphStore.Backend = getEnvString("GRAPH_STORE_BACKEND", c.GraphStore.Backend)
	c.GraphStore.URI = getEnvString("GRAPH_STORE_URI", c.GraphStore.URI)
	c.GraphStore.User = getEnvString("GRAPH_STORE_USER", c.GraphStore.User)
	c.GraphStore.Password = getEnvString("GRAPH_STORE_PASSWORD", c.GraphStore.Password)
	c.GraphStore.Table = getEnvString("GRAPH_STORE_TABLE", c.GraphStore.Table)
	c.GraphStore.Region = getEnvString("GRAPH_STORE_REGION", c.GraphStore.Region)
	c.GraphStore.AllowDefaultPassword = getEnvBool("GRAPH_STORE_ALLOW_DEFAULT_PASSWORD", c.GraphStore.AllowDefaultPassword)

	c.LLM.APIKey = getEnvString("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnvString("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnvString("LLM_MODEL", c.LLM.Model)

	c.Namespaces.Default = getEnvString("DEFAULT_NAMESPACE", c.Namespaces.Default)
	c.Namespaces.Root = getEnvString("ROOT_NAMESPACE", c.Namespaces.Root)

	if dirs := getEnvString("SCHEMA_DIRS", ""); dirs != "" {
		var sources []SchemaSource
		for _, pair := range strings.Split(dirs, ";") {
			parts := strings.SplitN(pair, "=", 2)
			src := SchemaSource{Dir: parts[0]}
			if len(parts) == 2 {
				src.Selector = parts[1]
			}
			sources = append(sources, src)
		}
		c.Schema.Sources = sources
	}
	c.Schema.IncludeRoot = getEnvBool("SCHEMA_INCLUDE_ROOT", c.Schema.IncludeRoot)
	c.Schema.RootDir = getEnvString("SCHEMA_ROOT_DIR", c.Schema.RootDir)

	c.Transport = getEnvString("TRANSPORT", c.Transport)
	c.Logging.Level = getEnvString("LOG_LEVEL", c.Logging.Level)
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// mintNamespace generates the random default namespace spec.md §6 calls for
// when no default is configured: "if absent, server mints a random one at
// startup." Short hex suffix on a fixed prefix, so an operator staring at
// logs can tell it's a minted namespace rather than one they configured.
func mintNamespace() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "ns-" + hex.EncodeToString(buf), nil
}
