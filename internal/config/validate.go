package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/memgit-oss/memgit/internal/errors"
)

var validDrivers = map[string]bool{
	"dolt":   true,
	"sqlite": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"":      true,
}

var validHookTypes = map[string]bool{
	"webhook": true,
	"log":     true,
}

// Validate checks the configuration for problems that would surface later as
// confusing runtime failures.
func Validate(cfg *Config) error {
	var problems []string

	if !validDrivers[cfg.Store.Driver] {
		problems = append(problems, fmt.Sprintf("unknown store driver %q (want dolt or sqlite)", cfg.Store.Driver))
	}
	if cfg.Store.Driver == "dolt" && cfg.Store.Database == "" {
		problems = append(problems, "store.database is required for the dolt driver")
	}
	if strings.TrimSpace(cfg.Store.ProtectedBranch) == "" {
		problems = append(problems, "store.protected_branch must not be empty")
	}
	if !validLogLevels[cfg.Logging.Level] {
		problems = append(problems, fmt.Sprintf("invalid logging level %q", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "" && cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		problems = append(problems, fmt.Sprintf("invalid logging format %q", cfg.Logging.Format))
	}
	if cfg.Index.Enabled && cfg.Index.URL == "" {
		problems = append(problems, "index.url is required when the index is enabled")
	}
	if cfg.Migrations.BranchPattern != "" {
		if _, err := regexp.Compile(cfg.Migrations.BranchPattern); err != nil {
			problems = append(problems, fmt.Sprintf("invalid migrations.branch_pattern: %v", err))
		}
	}

	for i, hook := range cfg.Hooks.Hooks {
		if hook.Name == "" {
			problems = append(problems, fmt.Sprintf("hooks[%d]: name is required", i))
		}
		if !validHookTypes[hook.Type] {
			problems = append(problems, fmt.Sprintf("hooks[%d]: unknown type %q", i, hook.Type))
		}
		if hook.Type == "webhook" && hook.URL == "" {
			problems = append(problems, fmt.Sprintf("hooks[%d]: webhook hooks require a url", i))
		}
	}

	if len(problems) > 0 {
		return errors.New(errors.CodeConfigInvalid,
			"config validation failed: "+strings.Join(problems, "; "))
	}
	return nil
}
