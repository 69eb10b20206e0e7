package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads the main project configuration
func Load(dir string) (*Config, error) {
	configFile := filepath.Join(dir, "memgit.yaml")

	content, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if no file exists
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Interpolate environment variables
	content = []byte(interpolateEnv(string(content)))

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// interpolateEnv replaces ${env.VAR} and ${VAR} with environment values
func interpolateEnv(content string) string {
	// Match ${env.VAR} pattern
	envPattern := regexp.MustCompile(`\$\{env\.([^}]+)\}`)
	content = envPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // keep original if not found
	})

	// Match ${VAR} pattern
	varPattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	content = varPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := varPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return content
}

func defaultConfig() *Config {
	return &Config{
		Name:    "memgit-project",
		Version: "1.0",
		Store: StoreConfig{
			Driver:          "sqlite",
			ProtectedBranch: "main",
			DefaultBranch:   "main",
		},
		Namespace: NamespaceConfig{
			Default: "default",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Name == "" {
		cfg.Name = "memgit-project"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.Driver == "dolt" {
		if cfg.Store.Host == "" {
			cfg.Store.Host = "127.0.0.1"
		}
		if cfg.Store.Port == 0 {
			cfg.Store.Port = 3306
		}
		if cfg.Store.User == "" {
			cfg.Store.User = "root"
		}
		if cfg.Store.Database == "" {
			cfg.Store.Database = strings.ReplaceAll(cfg.Name, "-", "_")
		}
	}
	if cfg.Store.ProtectedBranch == "" {
		cfg.Store.ProtectedBranch = "main"
	}
	if cfg.Store.DefaultBranch == "" {
		cfg.Store.DefaultBranch = cfg.Store.ProtectedBranch
	}
	if cfg.Namespace.Default == "" {
		cfg.Namespace.Default = "default"
	}
	if cfg.Index.Enabled {
		if cfg.Index.URL == "" {
			cfg.Index.URL = "http://localhost:6333"
		}
		if cfg.Index.Collection == "" {
			cfg.Index.Collection = "memgit_blocks"
		}
		if cfg.Index.VectorSize == 0 {
			cfg.Index.VectorSize = 1536
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	// Store password from environment if not set
	if cfg.Store.Password == "" {
		cfg.Store.Password = os.Getenv("MEMGIT_STORE_PASSWORD")
	}
}
