package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// sqliteSchema is the layout of existing newsletter.sqlite files:
// users(email, count), count being the per-recipient quota.
const sqliteSchema = `CREATE TABLE IF NOT EXISTS users (email STRING PRIMARY KEY, count INTEGER)`

// OpenSQLite opens (or creates) the SQLite database file at path.
func OpenSQLite(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single run reads once; one connection is all it needs.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return conn, nil
}

// EnsureSQLiteSchema creates the users table if it is missing.
func EnsureSQLiteSchema(conn *sql.DB) error {
	_, err := conn.Exec(sqliteSchema)
	return err
}
