package config

// Config represents the main project configuration (memgit.yaml)
type Config struct {
	Name       string           `yaml:"name" json:"name"`
	Version    string           `yaml:"version" json:"version"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Namespace  NamespaceConfig  `yaml:"namespace" json:"namespace"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Hooks      HooksConfig      `yaml:"hooks" json:"hooks"`
	Migrations MigrationsConfig `yaml:"migrations" json:"migrations"`
}

// StoreConfig configures the versioned relational backend.
type StoreConfig struct {
	Driver   string `yaml:"driver" json:"driver"` // dolt, sqlite
	Host     string `yaml:"host,omitempty" json:"host,omitempty"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	User     string `yaml:"user,omitempty" json:"user,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
	SSL      bool   `yaml:"ssl,omitempty" json:"ssl,omitempty"`

	ProtectedBranch string `yaml:"protected_branch" json:"protected_branch"`
	DefaultBranch   string `yaml:"default_branch" json:"default_branch"` // initial active branch
}

// NamespaceConfig configures namespace behavior.
type NamespaceConfig struct {
	Default string `yaml:"default" json:"default"`
}

// IndexConfig configures the semantic side index.
type IndexConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	URL        string `yaml:"url,omitempty" json:"url,omitempty"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
	VectorSize int    `yaml:"vector_size,omitempty" json:"vector_size,omitempty"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text, json
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// HooksConfig configures lifecycle event hooks.
type HooksConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Hooks   []HookConfig `yaml:"hooks" json:"hooks"`
}

// HookConfig defines a single hook.
type HookConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`     // webhook, log
	Events   []string `yaml:"events" json:"events"` // event types to match
	Blocking bool     `yaml:"blocking" json:"blocking"`
	URL      string   `yaml:"url,omitempty" json:"url,omitempty"`     // for webhook hooks
	Level    string   `yaml:"level,omitempty" json:"level,omitempty"` // for log hooks (debug, info, warn)
}

// MigrationsConfig configures the migration runner.
type MigrationsConfig struct {
	BranchPattern  string `yaml:"branch_pattern,omitempty" json:"branch_pattern,omitempty"`
	AllowAnyBranch bool   `yaml:"allow_any_branch,omitempty" json:"allow_any_branch,omitempty"`
}
