// Package leaderboard persists finished results and serves the top scores.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	constants "github.com/CodeAndHammer/typeduel/internal/constants"
)

// Board names one ranking table.
type Board string

const (
	// BoardVerified holds results backed by a result token.
	BoardVerified Board = "leaderboard"
	// BoardMeme accepts anything anyone posts.
	BoardMeme Board = "memeboard"
)

var (
	ErrUnknownBoard     = errors.New("unknown board")
	ErrUsernameRequired = errors.New("username is required")
	ErrUsernameTooLong  = errors.New("username too long")
)

type Entry struct {
	Username string  `json:"username"`
	WPM      float64 `json:"wpm"`
}

type Store interface {
	Insert(ctx context.Context, board Board, username string, wpm float64) error
	// Top returns at most n entries ordered by wpm descending.
	Top(ctx context.Context, board Board, n int) ([]Entry, error)
	Close() error
}

// Open picks a backend from dsn: empty for memory, a postgres:// URL for Postgres, anything
// else is a SQLite file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.TrimSpace(dsn) == "":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return OpenSQLite(dsn)
	}
}

// MaxUsernameLength is the longest name accepted on board.
func MaxUsernameLength(board Board) int {
	if board == BoardMeme {
		return constants.MaxMemeUsernameLength
	}
	return constants.MaxUsernameLength
}

func validateBoard(board Board) error {
	if board != BoardVerified && board != BoardMeme {
		return fmt.Errorf("%w: %q", ErrUnknownBoard, board)
	}
	return nil
}

func validate(board Board, username string) error {
	if err := validateBoard(board); err != nil {
		return err
	}
	if username == "" {
		return ErrUsernameRequired
	}
	if len([]rune(username)) > MaxUsernameLength(board) {
		return ErrUsernameTooLong
	}
	return nil
}

// Threshold returns the wpm needed to reach the verified board, the LeaderboardSize-th best
// score, or 0 while the board has fewer entries.
func Threshold(ctx context.Context, store Store) (float64, error) {
	top, err := store.Top(ctx, BoardVerified, constants.LeaderboardSize)
	if err != nil {
		return 0, err
	}
	if len(top) < constants.LeaderboardSize {
		return 0, nil
	}
	return top[len(top)-1].WPM, nil
}

// ScoreRecorder adapts a Store to receive multiplayer results on the verified board.
// Player ids are session identifiers, not display names, so every race result is saved
// under constants.MultiplayerUsername.
type ScoreRecorder struct {
	Store Store
}

func (r ScoreRecorder) RecordScore(ctx context.Context, _ string, wpm float64) error {
	return r.Store.Insert(ctx, BoardVerified, constants.MultiplayerUsername, wpm)
}
