package leaderboard

import (
	"context"
	"slices"
	"sync"
)

// Memory is a process-local Store.
type Memory struct {
	mu     sync.RWMutex
	boards map[Board][]Entry
}

func NewMemory() *Memory {
	return &Memory{boards: make(map[Board][]Entry)}
}

func (m *Memory) Insert(ctx context.Context, board Board, username string, wpm float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(board, username); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[board] = append(m.boards[board], Entry{Username: username, WPM: wpm})
	return nil
}

func (m *Memory) Top(ctx context.Context, board Board, n int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateBoard(board); err != nil {
		return nil, err
	}
	m.mu.RLock()
	entries := slices.Clone(m.boards[board])
	m.mu.RUnlock()

	slices.SortStableFunc(entries, func(a, b Entry) int {
		switch {
		case a.WPM > b.WPM:
			return -1
		case a.WPM < b.WPM:
			return 1
		default:
			return 0
		}
	})
	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (m *Memory) Close() error {
	return nil
}
