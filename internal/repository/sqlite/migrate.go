package sqlite

import (
	"database/sql"
	"fmt"
	"time"
)

// migration is one versioned schema change. Migrations are identified by
// name, applied in slice order, and recorded in the migrations table so a
// restart only runs what is new. Down SQL is kept for rollbacks in tests and
// operational repair; the server itself only ever migrates forward.
type migration struct {
	name string
	up   string
	down string
}

// migrations is append-only. Never edit or reorder an entry that has shipped —
// add a new one.
var migrations = []migration{
	{
		name: "001_create_users",
		up: `
			CREATE TABLE users (
				id         TEXT PRIMARY KEY,
				email      TEXT UNIQUE,
				name       TEXT,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`,
		down: `DROP TABLE users;`,
	},
	{
		name: "002_create_polls",
		up: `
			CREATE TABLE polls (
				id         TEXT PRIMARY KEY,
				author_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				question   TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_polls_author_id ON polls(author_id);
			CREATE INDEX idx_polls_created_at ON polls(created_at);
		`,
		down: `DROP TABLE polls;`,
	},
	{
		name: "003_create_answers",
		up: `
			CREATE TABLE answers (
				id      TEXT PRIMARY KEY,
				poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
				ordinal INTEGER NOT NULL,
				text    TEXT NOT NULL,
				UNIQUE (poll_id, ordinal)
			);
			CREATE INDEX idx_answers_poll_id ON answers(poll_id);
		`,
		down: `DROP TABLE answers;`,
	},
	{
		name: "004_create_votes",
		up: `
			CREATE TABLE votes (
				id         TEXT PRIMARY KEY,
				poll_id    TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
				answer_id  TEXT NOT NULL REFERENCES answers(id) ON DELETE CASCADE,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (poll_id, user_id)
			);
			CREATE INDEX idx_votes_answer_id ON votes(answer_id);
			CREATE INDEX idx_votes_user_id ON votes(user_id);
		`,
		down: `DROP TABLE votes;`,
	},
	{
		name: "005_create_sessions",
		up: `
			CREATE TABLE sessions (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				expires_at DATETIME NOT NULL
			);
			CREATE INDEX idx_sessions_user_id ON sessions(user_id);
		`,
		down: `DROP TABLE sessions;`,
	},
}

// Migrate applies every migration not yet recorded in the migrations table,
// in order. Each migration runs in its own transaction together with its
// ledger row, so a failure leaves the schema at a clean prior version.
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			name        TEXT PRIMARY KEY,
			executed_at DATETIME NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := db.appliedMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.name] {
			continue
		}
		if err := db.runMigration(m.name, m.up, false); err != nil {
			return fmt.Errorf("applying %s: %w", m.name, err)
		}
	}

	return nil
}

// Rollback reverts the most recently applied migration. Used by tests and
// operational tooling; the server never calls it.
func (db *DB) Rollback() error {
	var name string
	err := db.conn.QueryRow(
		`SELECT name FROM migrations ORDER BY name DESC LIMIT 1`,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return nil // nothing applied, nothing to do
	}
	if err != nil {
		return fmt.Errorf("reading migration ledger: %w", err)
	}

	for _, m := range migrations {
		if m.name == name {
			if err := db.runMigration(m.name, m.down, true); err != nil {
				return fmt.Errorf("rolling back %s: %w", m.name, err)
			}
			return nil
		}
	}
	return fmt.Errorf("migration %s is in the ledger but not in the migration list", name)
}

func (db *DB) appliedMigrations() (map[string]bool, error) {
	rows, err := db.conn.Query(`SELECT name FROM migrations`)
	if err != nil {
		return nil, fmt.Errorf("reading migration ledger: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning migration name: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (db *DB) runMigration(name, stmt string, rollback bool) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(stmt); err != nil {
		return err
	}

	if rollback {
		_, err = tx.Exec(`DELETE FROM migrations WHERE name = ?`, name)
	} else {
		_, err = tx.Exec(
			`INSERT INTO migrations (name, executed_at) VALUES (?, ?)`,
			name, time.Now(),
		)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}
