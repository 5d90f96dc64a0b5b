// Package config defines the process configuration surface: graph-store
// connection, LLM backend, namespace defaults, schema source directories,
// transport selection, and logging — validated with
// github.com/go-playground/validator/v10 the way the teacher's Config does.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Environment gates the insecure-default-password guard: a fixed default
// graph-store password is refused at startup unless Environment is
// "development", mirroring the Python original's GraphitiConfig.from_env.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// defaultGraphStorePassword is the well-known placeholder refused outside
// development, exactly as the original refuses a literal "password".
const defaultGraphStorePassword = "password"

// Config is the complete process configuration, loaded once at startup and
// never mutated afterward.
type Config struct {
	Environment Environment `yaml:"environment" validate:"required,oneof=development staging production"`
	Server      Server      `yaml:"server" validate:"required"`
	GraphStore  GraphStore  `yaml:"graph_store" validate:"required"`
	LLM         LLM         `yaml:"llm" validate:"required"`
	Namespaces  Namespaces  `yaml:"namespaces" validate:"required"`
	Schema      Schema      `yaml:"schema"`
	Transport   string      `yaml:"transport" validate:"required,oneof=sse stdio"`
	Logging     Logging     `yaml:"logging"`
}

// Server configures the SSE transport's HTTP listener. Unused when
// Transport == "stdio".
type Server struct {
	Host            string `yaml:"host" validate:"required"`
	Port            int    `yaml:"port" validate:"required,min=1,max=65535"`
	ShutdownTimeout string `yaml:"shutdown_timeout" validate:"required"`
}

// GraphStore configures the C2 backend: either an in-process MemoryStore
// ("memory") for tests and small deployments, or a DynamoDB-backed
// DynamoStore ("dynamo").
type GraphStore struct {
	Backend              string `yaml:"backend" validate:"required,oneof=memory dynamo"`
	URI                  string `yaml:"uri"`
	User                 string `yaml:"user"`
	Password             string `yaml:"password"`
	Table                string `yaml:"table"`
	Region               string `yaml:"region"`
	AllowDefaultPassword bool   `yaml:"allow_default_password"`
}

// LLM configures the C3 extractor's backend.
type LLM struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model" validate:"required"`
}

// Namespaces configures the default and root namespace names. Default is
// never empty by the time Validate runs: Load mints a random one (spec.md
// §6) when the caller left it unconfigured.
type Namespaces struct {
	Default string `yaml:"default" validate:"required"`
	Root    string `yaml:"root" validate:"required"`
}

// SchemaSource is one (directory, selector) pair from the schema loading
// contract in spec §4.1: selector is "" (meaning "all") or a comma-separated
// list of immediate subdirectory names.
type SchemaSource struct {
	Dir      string `yaml:"dir" validate:"required"`
	Selector string `yaml:"selector"`
}

// Schema configures the C1 registry's loading inputs.
type Schema struct {
	Sources     []SchemaSource `yaml:"sources"`
	IncludeRoot bool           `yaml:"include_root"`
	RootDir     string         `yaml:"root_dir"`
}

// Logging configures the process-wide zap logger.
type Logging struct {
	Level string `yaml:"level" validate:"required,oneof=debug info warn error fatal"`
}

// Validate runs struct-tag validation plus the business rules struct tags
// can't express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			var msgs []string
			for _, e := range verrs {
				msgs = append(msgs, formatValidationError(e))
			}
			return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return c.validateBusinessRules()
}

func (c *Config) validateBusinessRules() error {
	if c.GraphStore.Backend == "dynamo" {
		if c.GraphStore.Table == "" {
			return fmt.Errorf("graph_store.table is required when backend is dynamo")
		}
		if c.GraphStore.Region == "" {
			return fmt.Errorf("graph_store.region is required when backend is dynamo")
		}
	}
	if c.GraphStore.Password == defaultGraphStorePassword &&
		c.Environment != Development &&
		!c.GraphStore.AllowDefaultPassword {
		return fmt.Errorf("refusing to start with the default graph-store password outside a development environment")
	}
	return nil
}

func formatValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}
