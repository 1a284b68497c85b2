package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load reads configuration from an optional YAML file, overridden by
// environment variables, then applies defaults and validates.
//
// Precedence (highest to lowest): environment variables, YAML file,
// built-in defaults. Well-known flat env names (QDRANT_HOST,
// POSTGRES_*, NEO4J_*) map directly to their config paths; every
// other env var splits on its first underscore into section/field.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyTransform), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config: %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return content, nil
}

// flatEnvOverrides maps the well-known flat env var names to their
// dotted config path, since these are historical flat names rather
// than a section_field pattern.
var flatEnvOverrides = map[string]string{
	"QDRANT_HOST":        "storage.qdrant_host",
	"QDRANT_PORT":        "storage.qdrant_port",
	"QDRANT_REST_PORT":   "storage.qdrant_rest_port",
	"POSTGRES_HOST":      "storage.postgres_host",
	"POSTGRES_PORT":      "storage.postgres_port",
	"POSTGRES_DATABASE":  "storage.postgres_database",
	"POSTGRES_USER":      "storage.postgres_user",
	"POSTGRES_PASSWORD":  "storage.postgres_password",
	"POSTGRES_POOL_SIZE": "storage.postgres_pool_size",
	"NEO4J_HOST":         "storage.neo4j_host",
	"NEO4J_HTTP_PORT":    "storage.neo4j_http_port",
	"NEO4J_BOLT_PORT":    "storage.neo4j_bolt_port",
	"NEO4J_USER":         "storage.neo4j_user",
	"NEO4J_PASSWORD":     "storage.neo4j_password",
}

// envKeyTransform maps an environment variable name to its dotted
// config path. Flat names (flatEnvOverrides) take priority;
// everything else falls back to the generic SECTION_FIELD_NAME ->
// section.field_name first-underscore split.
func envKeyTransform(s string) string {
	if path, ok := flatEnvOverrides[s]; ok {
		return path
	}
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}
