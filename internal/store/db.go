// Package store persists contacts, SMTP accounts and campaign
// definitions in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQL connection.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the store database.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// Migrate applies the schema.
func (db *DB) Migrate() error {
	migrations := []string{
		migrationContacts,
		migrationAccounts,
		migrationCampaigns,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const migrationContacts = `
CREATE TABLE IF NOT EXISTS contacts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL,
	company TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	unsubscribed INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE(user_id, email)
);
CREATE INDEX IF NOT EXISTS idx_contacts_user ON contacts(user_id);
`

const migrationAccounts = `
CREATE TABLE IF NOT EXISTS smtp_accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL,
	host TEXT NOT NULL,
	port INTEGER NOT NULL,
	username TEXT NOT NULL DEFAULT '',
	password TEXT NOT NULL DEFAULT '',
	from_name TEXT NOT NULL DEFAULT '',
	daily_limit INTEGER NOT NULL,
	sent_today INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	verified INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_smtp_accounts_user ON smtp_accounts(user_id);
`

const migrationCampaigns = `
CREATE TABLE IF NOT EXISTS campaigns (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	steps TEXT NOT NULL DEFAULT '[]',
	contact_ids TEXT NOT NULL DEFAULT '[]',
	account_ids TEXT NOT NULL DEFAULT '[]',
	daily_limit_per_inbox INTEGER NOT NULL DEFAULT 0,
	delay_min_seconds INTEGER NOT NULL DEFAULT 30,
	delay_max_seconds INTEGER NOT NULL DEFAULT 60,
	personalization INTEGER NOT NULL DEFAULT 1,
	ab_testing INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'draft',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_campaigns_user ON campaigns(user_id);
`
