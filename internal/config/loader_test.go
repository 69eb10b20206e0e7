package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "memgit.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return dir
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("default driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.Store.ProtectedBranch != "main" {
		t.Errorf("default protected branch = %q, want main", cfg.Store.ProtectedBranch)
	}
	if cfg.Namespace.Default != "default" {
		t.Errorf("default namespace = %q, want default", cfg.Namespace.Default)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("default logging = %s/%s, want info/text", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadFullConfig(t *testing.T) {
	dir := writeConfig(t, `
name: agent-memory
version: "1.0"
store:
  driver: dolt
  host: db.internal
  port: 3307
  user: memgit
  database: agent_memory
  protected_branch: trunk
  default_branch: work
namespace:
  default: shared
index:
  enabled: true
  url: http://qdrant:6333
  collection: blocks
logging:
  level: debug
  format: json
migrations:
  branch_pattern: "^migrations/"
hooks:
  enabled: true
  hooks:
    - name: audit
      type: webhook
      url: http://audit.internal/events
      events: [block.created]
      blocking: true
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Driver != "dolt" || cfg.Store.Host != "db.internal" || cfg.Store.Port != 3307 {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Store.ProtectedBranch != "trunk" || cfg.Store.DefaultBranch != "work" {
		t.Errorf("branches = %s/%s, want trunk/work", cfg.Store.ProtectedBranch, cfg.Store.DefaultBranch)
	}
	if !cfg.Index.Enabled || cfg.Index.Collection != "blocks" {
		t.Errorf("index = %+v", cfg.Index)
	}
	if cfg.Index.VectorSize != 1536 {
		t.Errorf("vector size = %d, want default 1536", cfg.Index.VectorSize)
	}
	if cfg.Migrations.BranchPattern != "^migrations/" {
		t.Errorf("branch pattern = %q", cfg.Migrations.BranchPattern)
	}
	if len(cfg.Hooks.Hooks) != 1 || cfg.Hooks.Hooks[0].Name != "audit" {
		t.Errorf("hooks = %+v", cfg.Hooks)
	}
}

func TestLoadInterpolatesEnv(t *testing.T) {
	t.Setenv("MEMGIT_TEST_DB", "interp_db")
	t.Setenv("MEMGIT_TEST_PASS", "hunter2")

	dir := writeConfig(t, `
store:
  driver: dolt
  database: ${env.MEMGIT_TEST_DB}
  password: ${MEMGIT_TEST_PASS}
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Database != "interp_db" {
		t.Errorf("database = %q, want interp_db", cfg.Store.Database)
	}
	if cfg.Store.Password != "hunter2" {
		t.Errorf("password = %q, want hunter2", cfg.Store.Password)
	}
}

func TestLoadDefaultBranchFallsBackToProtected(t *testing.T) {
	dir := writeConfig(t, `
store:
  driver: sqlite
  protected_branch: trunk
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.DefaultBranch != "trunk" {
		t.Errorf("default branch = %q, want trunk", cfg.Store.DefaultBranch)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := writeConfig(t, `
store:
  driver: postgres
`)

	if _, err := Load(dir); err == nil {
		t.Fatal("Load() succeeded with unknown driver")
	}
}
