package leaderboard

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS leaderboard (
	username TEXT NOT NULL,
	wpm      REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS leaderboard_wpm ON leaderboard (wpm DESC);
CREATE TABLE IF NOT EXISTS memeboard (
	username TEXT NOT NULL,
	wpm      REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS memeboard_wpm ON memeboard (wpm DESC);
`

// SQLite persists boards in a SQLite file.
type SQLite struct {
	sqlDB *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

func (s *SQLite) Insert(ctx context.Context, board Board, username string, wpm float64) error {
	if err := validate(board, username); err != nil {
		return err
	}
	// board is one of the two validated table names.
	_, err := s.sqlDB.ExecContext(ctx, `INSERT INTO `+string(board)+` (username, wpm) VALUES (?, ?)`, username, wpm)
	if err != nil {
		return fmt.Errorf("insert %s: %w", board, err)
	}
	return nil
}

func (s *SQLite) Top(ctx context.Context, board Board, n int) ([]Entry, error) {
	if err := validateBoard(board); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT username, wpm FROM `+string(board)+` ORDER BY wpm DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", board, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Username, &e.WPM); err != nil {
			return nil, fmt.Errorf("scan %s: %w", board, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
