package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	constants "github.com/CodeAndHammer/typeduel/internal/constants"
)

func openTempSQLite(t *testing.T) *SQLite {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "leaderboard.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close sqlite store: %v", err)
		}
	})
	return store
}

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{
		"memory": NewMemory(),
		"sqlite": openTempSQLite(t),
	}
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		pg, err := OpenPostgres(context.Background(), dsn)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		t.Cleanup(func() { _ = pg.Close() })
		stores["postgres"] = pg
	}
	return stores
}

func TestStoreOrdersByWPM(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			for _, e := range []Entry{{"slow", 40}, {"fast", 120.5}, {"mid", 80}} {
				if err := store.Insert(ctx, BoardVerified, e.Username, e.WPM); err != nil {
					t.Fatalf("Insert(%s): %v", e.Username, err)
				}
			}
			if err := store.Insert(ctx, BoardMeme, "meme", 9000); err != nil {
				t.Fatalf("Insert meme: %v", err)
			}

			top, err := store.Top(ctx, BoardVerified, 2)
			if err != nil {
				t.Fatalf("Top: %v", err)
			}
			if len(top) != 2 || top[0].Username != "fast" || top[1].Username != "mid" {
				t.Fatalf("top = %+v, want [fast mid]", top)
			}
			memes, err := store.Top(ctx, BoardMeme, 20)
			if err != nil {
				t.Fatalf("Top meme: %v", err)
			}
			if len(memes) != 1 || memes[0].WPM != 9000 {
				t.Fatalf("memes = %+v", memes)
			}
		})
	}
}

func TestInsertValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	if err := store.Insert(ctx, BoardVerified, strings.Repeat("x", 33), 50); !errors.Is(err, ErrUsernameTooLong) {
		t.Fatalf("long name err = %v, want %v", err, ErrUsernameTooLong)
	}
	if err := store.Insert(ctx, BoardMeme, strings.Repeat("x", 33), 50); err != nil {
		t.Fatalf("meme board should accept 33 chars: %v", err)
	}
	if err := store.Insert(ctx, BoardVerified, "", 50); !errors.Is(err, ErrUsernameRequired) {
		t.Fatalf("empty name err = %v, want %v", err, ErrUsernameRequired)
	}
	if err := store.Insert(ctx, Board("users; DROP TABLE x"), "a", 50); !errors.Is(err, ErrUnknownBoard) {
		t.Fatalf("bad board err = %v, want %v", err, ErrUnknownBoard)
	}
}

func TestThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	for i := range 19 {
		store.Insert(ctx, BoardVerified, fmt.Sprintf("p%d", i), float64(50+i))
	}
	got, err := Threshold(ctx, store)
	if err != nil {
		t.Fatalf("Threshold: %v", err)
	}
	if got != 0 {
		t.Fatalf("threshold with 19 entries = %v, want 0", got)
	}

	store.Insert(ctx, BoardVerified, "p19", 10)
	store.Insert(ctx, BoardVerified, "p20", 5)
	got, _ = Threshold(ctx, store)
	if got != 10 {
		t.Fatalf("threshold = %v, want 10", got)
	}
}

func TestScoreRecorderWritesVerifiedBoard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	// Issued player ids are 36-character UUIDs, longer than the verified board allows.
	playerID := uuid.NewString()
	if err := (ScoreRecorder{Store: store}).RecordScore(ctx, playerID, 72.5); err != nil {
		t.Fatalf("RecordScore: %v", err)
	}
	top, _ := store.Top(ctx, BoardVerified, 1)
	if len(top) != 1 || top[0].Username != constants.MultiplayerUsername || top[0].WPM != 72.5 {
		t.Fatalf("top = %+v", top)
	}
}

func TestOpenPicksBackend(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := store.(*Memory); !ok {
		t.Fatalf("empty dsn opened %T, want *Memory", store)
	}

	store, err = Open(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*SQLite); !ok {
		t.Fatalf("path opened %T, want *SQLite", store)
	}
}
