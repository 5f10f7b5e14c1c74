package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration is one versioned schema change. Migrations are built into
// the binary so a deployment needs nothing beyond the database file.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// builtinMigrations is the full schema history, applied in version order.
var builtinMigrations = []Migration{
	{
		Version:     "001",
		Description: "initial_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL UNIQUE,
				name TEXT,
				role TEXT NOT NULL CHECK (role IN ('student', 'teacher', 'admin')),
				active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				sender_id TEXT NOT NULL REFERENCES users(id),
				receiver_id TEXT NOT NULL REFERENCES users(id),
				body TEXT NOT NULL DEFAULT '',
				file_url TEXT,
				file_name TEXT,
				file_type TEXT,
				file_size INTEGER,
				is_read INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_messages_receiver_read ON messages(receiver_id, is_read);
			CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(sender_id, receiver_id, created_at);

			CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				body TEXT NOT NULL,
				created_by TEXT NOT NULL REFERENCES users(id),
				target_role TEXT CHECK (target_role IN ('student', 'teacher', 'admin')),
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);
			CREATE INDEX IF NOT EXISTS idx_notifications_role ON notifications(target_role);

			CREATE TABLE IF NOT EXISTS notification_reads (
				notification_id TEXT NOT NULL REFERENCES notifications(id),
				user_id TEXT NOT NULL REFERENCES users(id),
				read_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (notification_id, user_id)
			);
		`,
	},
}

// MigrationManager applies pending migrations and tracks the applied
// set in a schema_migrations table.
type MigrationManager struct {
	db         *sql.DB
	migrations []Migration
}

// NewMigrationManager creates a manager over the built-in migration set.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db, migrations: builtinMigrations}
}

// ApplyMigrations applies every migration not yet recorded, each inside
// its own transaction.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations := make([]Migration, len(m.migrations))
	copy(migrations, m.migrations)
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w",
				migration.Version, migration.Description, err)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) getAppliedMigrations() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// applyMigration runs one migration and records it, atomically.
func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.Exec(migration.SQL); err != nil {
		return err
	}

	if _, err = tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}

	return tx.Commit()
}
