package sqlite

func (s Storage) RunMigrations() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS config (
		name VARCHAR NOT NULL PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient VARCHAR NOT NULL,
		procedure VARCHAR NOT NULL DEFAULT '',
		professional VARCHAR NOT NULL DEFAULT '',
		contact VARCHAR NOT NULL DEFAULT '',
		status VARCHAR NOT NULL DEFAULT 'pending',
		color VARCHAR NOT NULL DEFAULT '',
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL
	)`,
}
