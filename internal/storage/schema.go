package storage

import (
	"database/sql"
)

// initializeSchema creates all tables when absent.
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		statements := []string{
			`CREATE TABLE IF NOT EXISTS synthetic_code (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				test_category TEXT,
				snapshot_sha256 TEXT NOT NULL,
				source_files TEXT NOT NULL,
				status TEXT NOT NULL,
				created_at TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at TEXT NOT NULL DEFAULT (datetime('now'))
			)`,
			`CREATE INDEX IF NOT EXISTS idx_synthetic_code_snapshot
				ON synthetic_code(snapshot_sha256)`,

			`CREATE TABLE IF NOT EXISTS binaries (
				file_hash TEXT PRIMARY KEY,
				synthetic_code_id INTEGER NOT NULL,
				optimization_level TEXT NOT NULL,
				variant_type TEXT NOT NULL,
				has_debug_info INTEGER NOT NULL DEFAULT 0,
				is_stripped INTEGER NOT NULL DEFAULT 0,
				elf_type TEXT,
				arch TEXT,
				build_id TEXT,
				size_bytes INTEGER,
				path_rel TEXT,
				created_at TEXT NOT NULL DEFAULT (datetime('now')),
				FOREIGN KEY (synthetic_code_id) REFERENCES synthetic_code(id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_binaries_code
				ON binaries(synthetic_code_id, optimization_level, variant_type)`,

			`CREATE TABLE IF NOT EXISTS jobs (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				payload TEXT,
				status TEXT NOT NULL DEFAULT 'queued',
				created_at TEXT NOT NULL,
				started_at TEXT,
				completed_at TEXT,
				error TEXT,
				result TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_kind ON jobs(kind)`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
