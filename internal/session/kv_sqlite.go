package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteKV keeps session keys in a local SQLite file.
type SQLiteKV struct {
	db *sql.DB
}

func OpenSQLiteKV(ctx context.Context, path string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS session_kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session table: %w", err)
	}
	return &SQLiteKV{db: db}, nil
}

func (kv *SQLiteKV) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := kv.db.QueryRowContext(ctx, `SELECT value FROM session_kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (kv *SQLiteKV) Set(ctx context.Context, key, value string) error {
	_, err := kv.db.ExecContext(ctx, `
		INSERT INTO session_kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (kv *SQLiteKV) Remove(ctx context.Context, key string) error {
	_, err := kv.db.ExecContext(ctx, `DELETE FROM session_kv WHERE key = ?`, key)
	return err
}

func (kv *SQLiteKV) Close() error {
	return kv.db.Close()
}
