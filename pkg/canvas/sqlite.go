package canvas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend keeps the canvas as a single row in a SQLite database file.
type SQLiteBackend struct {
	Path string
	// ID is the row key, "default" when empty.
	ID string

	database *sql.DB
}

func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps writers from tripping over SQLITE_BUSY
	db.SetMaxOpenConns(1)
	return &SQLiteBackend{Path: path, database: db}, nil
}

func (s *SQLiteBackend) Close() error {
	return s.database.Close()
}

func (s *SQLiteBackend) String() string {
	return "sqlite3:" + s.Path
}

func (s *SQLiteBackend) id() string {
	if s.ID == "" {
		return "default"
	}
	return s.ID
}

func (s *SQLiteBackend) Prepare(ctx context.Context) error {
	if _, err := s.database.ExecContext(
		ctx,
		`CREATE TABLE IF NOT EXISTS canvases (
    	id text not null primary key,
        content blob not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Load(ctx context.Context) ([]byte, error) {
	var content []byte
	if err := s.database.QueryRowContext(
		ctx, `SELECT content FROM canvases WHERE id = ?`, s.id(),
	).Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	return content, nil
}

func (s *SQLiteBackend) Save(ctx context.Context, raw []byte) error {
	if _, err := s.database.ExecContext(
		ctx,
		`INSERT INTO canvases (id, content) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET content = excluded.content`,
		s.id(), raw,
	); err != nil {
		return fmt.Errorf("failed to persist canvas: %w", err)
	}
	return nil
}
