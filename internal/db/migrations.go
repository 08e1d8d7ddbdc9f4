package db

import (
	"fmt"
)

// migrations is an ordered list of SQL statements to run.
// The DDL is kept to the subset SQLite and PostgreSQL share.
// Timestamps are unix nanoseconds so both drivers scan them the same way.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS visits (
		id              TEXT    PRIMARY KEY,
		first_name      TEXT    NOT NULL DEFAULT '',
		last_name       TEXT    NOT NULL DEFAULT '',
		group_size      INTEGER NOT NULL DEFAULT 0 CHECK (group_size >= 0),
		group_label     TEXT    NOT NULL,
		department      TEXT    NOT NULL DEFAULT '',
		resource        TEXT    NOT NULL DEFAULT '',
		visitor_class   TEXT    NOT NULL DEFAULT 'internal',
		visit_date      TEXT    NOT NULL DEFAULT '',
		sequence_number INTEGER NOT NULL DEFAULT 0,
		created_at      BIGINT,
		updated_at      BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visits_visit_date ON visits (visit_date)`,
	`CREATE INDEX IF NOT EXISTS idx_visits_created_at ON visits (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_visits_person ON visits (first_name, last_name)`,
}

// migrate runs all migrations in order.
func (d *DB) migrate() error {
	for i, m := range migrations {
		if _, err := d.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
