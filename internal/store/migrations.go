package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per fired alert
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			detector TEXT NOT NULL,
			candidates INTEGER NOT NULL DEFAULT 0,
			best_confidence REAL NOT NULL DEFAULT 0,
			snapshot_path TEXT NOT NULL DEFAULT '',
			snapshot_error TEXT NOT NULL DEFAULT '',
			fired_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_alerts_fired_at ON alerts(fired_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
