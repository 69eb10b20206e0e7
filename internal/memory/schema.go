package memory

// BuiltinMigrations returns the schema history for the engine's four tables.
// DDL sticks to the type subset both backends accept. Index creation has no
// IF NOT EXISTS on MySQL, so re-running exercises the already-exists guard.
func BuiltinMigrations() []Migration {
	return []Migration{
		{
			Seq:  1,
			Name: "create_core_tables",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS namespaces (
					id VARCHAR(64) NOT NULL,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL,
					description TEXT,
					created_at DATETIME NOT NULL,
					PRIMARY KEY (id),
					UNIQUE (name),
					UNIQUE (slug)
				)`,
				`CREATE TABLE IF NOT EXISTS memory_blocks (
					id VARCHAR(64) NOT NULL,
					block_type VARCHAR(32) NOT NULL,
					content TEXT NOT NULL,
					metadata TEXT,
					namespace_id VARCHAR(64) NOT NULL,
					tags TEXT,
					created_by VARCHAR(255) NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					commit_state VARCHAR(16) NOT NULL DEFAULT 'staged',
					PRIMARY KEY (id)
				)`,
				`CREATE TABLE IF NOT EXISTS block_links (
					id VARCHAR(64) NOT NULL,
					from_id VARCHAR(64) NOT NULL,
					to_id VARCHAR(64) NOT NULL,
					relation VARCHAR(64) NOT NULL,
					inverse_relation VARCHAR(64) NOT NULL DEFAULT '',
					priority INT NOT NULL DEFAULT 0,
					created_by VARCHAR(255) NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					PRIMARY KEY (id)
				)`,
			},
			Down: []string{
				`DROP TABLE IF EXISTS block_links`,
				`DROP TABLE IF EXISTS memory_blocks`,
				`DROP TABLE IF EXISTS namespaces`,
			},
		},
		{
			Seq:  2,
			Name: "create_indexes",
			Up: []string{
				`CREATE INDEX idx_blocks_namespace ON memory_blocks (namespace_id)`,
				`CREATE INDEX idx_links_from ON block_links (from_id)`,
				`CREATE INDEX idx_links_to ON block_links (to_id)`,
			},
			// Index drops are not portable across backends; the indexes are
			// harmless to leave behind on rollback.
			Down: nil,
		},
		{
			Seq:  3,
			Name: "seed_default_namespace",
			Up: []string{
				`INSERT INTO namespaces (id, name, slug, description, created_at)
				 VALUES ('default', 'Default', 'default', 'Well-known default namespace', CURRENT_TIMESTAMP)`,
			},
			Down: []string{
				`DELETE FROM namespaces WHERE id = 'default'`,
			},
		},
	}
}
