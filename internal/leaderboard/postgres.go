package leaderboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS leaderboard (
	username VARCHAR(32) NOT NULL,
	wpm      DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS memeboard (
	username VARCHAR(1024) NOT NULL,
	wpm      DOUBLE PRECISION NOT NULL
);
`

// Postgres persists boards through a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Insert(ctx context.Context, board Board, username string, wpm float64) error {
	if err := validate(board, username); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO `+string(board)+` (username, wpm) VALUES ($1, $2)`, username, wpm)
	if err != nil {
		return fmt.Errorf("insert %s: %w", board, err)
	}
	return nil
}

func (p *Postgres) Top(ctx context.Context, board Board, n int) ([]Entry, error) {
	if err := validateBoard(board); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, `SELECT username, wpm FROM `+string(board)+` ORDER BY wpm DESC LIMIT $1`, n)
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

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
