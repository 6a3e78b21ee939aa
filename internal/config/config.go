// Package config provides configuration loading for taleemd.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/taleemlabs/taleemd/internal/embeddings"
	"github.com/taleemlabs/taleemd/internal/logging"
	"github.com/taleemlabs/taleemd/internal/rag"
	"github.com/taleemlabs/taleemd/internal/retriever"
	"github.com/taleemlabs/taleemd/internal/vectordb"
)

// envPrefix namespaces environment variable overrides.
const envPrefix = "TALEEMD_"

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string `koanf:"addr"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ServerConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// CurriculumConfig points at the curriculum seed data.
type CurriculumConfig struct {
	// Path is a YAML curriculum file loaded into the retriever at startup.
	// Empty skips seeding.
	Path string `koanf:"path"`
}

// Config is the root configuration for the daemon.
type Config struct {
	Server     ServerConfig        `koanf:"server"`
	Logging    logging.Config      `koanf:"logging"`
	Retriever  retriever.Config    `koanf:"retriever"`
	VectorDB   vectordb.Config     `koanf:"vectordb"`
	Embeddings embeddings.Config   `koanf:"embeddings"`
	Generation rag.GeneratorConfig `koanf:"generation"`
	Curriculum CurriculumConfig    `koanf:"curriculum"`
}

// ApplyDefaults sets default values across all sections.
func (c *Config) ApplyDefaults() {
	c.Server.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.Retriever.ApplyDefaults()
	c.VectorDB.ApplyDefaults()
	c.Embeddings.ApplyDefaults()
	c.Generation.ApplyDefaults()
}

// Validate validates all sections. The generation section is only checked
// when a worker is configured, since the engine degrades gracefully
// without one.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Retriever.Validate(); err != nil {
		return fmt.Errorf("retriever: %w", err)
	}
	if err := c.VectorDB.Validate(); err != nil {
		return fmt.Errorf("vectordb: %w", err)
	}
	if err := c.Embeddings.Validate(); err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}
	if c.Generation.WorkerPath != "" {
		if err := c.Generation.Validate(); err != nil {
			return fmt.Errorf("generation: %w", err)
		}
	}
	return nil
}

// Load reads configuration from an optional YAML file, then overrides with
// TALEEMD_-prefixed environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (TALEEMD_SERVER_ADDR, TALEEMD_VECTORDB_PATH, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// Variables map to keys by trimming the prefix, lowercasing, and splitting
// on the first underscore: TALEEMD_VECTORDB_WORKER_PATH -> vectordb.worker_path.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
