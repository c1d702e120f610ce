package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	// Registers the pure-Go "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// File is the on-disk YAML layout of a knowledge file.
type File struct {
	Entries []Entry `yaml:"entries"`
}

// ReadYAML reads entries from a YAML knowledge file.
func ReadYAML(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file %q: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge file %q: %w", path, err)
	}
	return f.Entries, nil
}

// LoadYAML builds a store from a YAML knowledge file.
func LoadYAML(path string) (*Store, error) {
	entries, err := ReadYAML(path)
	if err != nil {
		return nil, err
	}
	return NewStore(entries)
}

// SQLiteQuery selects entries from a knowledge database. The table is
// expected to have columns topic, claim and confidence.
const SQLiteQuery = `SELECT topic, claim, confidence FROM knowledge_entries ORDER BY topic, confidence DESC`

// SQLiteSchema creates the knowledge table. It is used by tests and by tools
// that build knowledge databases.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS knowledge_entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	topic      TEXT NOT NULL,
	claim      TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0 CHECK (confidence >= 0 AND confidence <= 1)
);
CREATE INDEX IF NOT EXISTS idx_knowledge_topic ON knowledge_entries(topic);
`

// ReadSQLite reads all entries from a SQLite knowledge database.
func ReadSQLite(ctx context.Context, path string) ([]Entry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("knowledge database %q: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge database %q: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, SQLiteQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge database %q: %w", path, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Topic, &e.Claim, &e.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read knowledge database %q: %w", path, err)
	}

	return entries, nil
}

// LoadSQLite builds a store from a SQLite knowledge database.
func LoadSQLite(ctx context.Context, path string) (*Store, error) {
	entries, err := ReadSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewStore(entries)
}
