package flightlog

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version string
	stmts   []string
}

var migrations = []migration{
	{
		version: "001_frames",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS frames (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				direction TEXT NOT NULL,
				command_id TEXT,
				frame_type TEXT NOT NULL,
				payload TEXT NOT NULL,
				recorded_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_frames_command_id ON frames(command_id)`,
		},
	},
	{
		version: "002_frames_recorded_at",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_frames_recorded_at ON frames(recorded_at)`,
		},
	},
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("flightlog: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("flightlog: check migration %s: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("flightlog: begin migration %s: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("flightlog: migration %s: %w", m.version, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("flightlog: record migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("flightlog: commit migration %s: %w", m.version, err)
		}
	}
	return nil
}
