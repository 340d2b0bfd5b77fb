// Package progress records how far each multiplayer racer has typed and scores them when
// they finish.
package progress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/typeduel/internal/constants"
	match "github.com/CodeAndHammer/typeduel/internal/match"
	typing "github.com/CodeAndHammer/typeduel/internal/typing"
	util "github.com/CodeAndHammer/typeduel/internal/util"
)

var (
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrInvalidFraction = errors.New("progress must be between 0 and 1")
)

// Sample is one progress report.
type Sample struct {
	Fraction float64   `json:"fraction"`
	At       time.Time `json:"at"`
}

// Snapshot is a player's latest fraction and the time since they started.
type Snapshot struct {
	Fraction float64       `json:"fraction"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Outcome describes what a report did beyond being recorded.
type Outcome struct {
	Completed bool    `json:"completed"`
	WPM       float64 `json:"wpm,omitempty"`
	Recorded  bool    `json:"recorded"`
}

// GameLookup resolves the game a player was sealed into.
type GameLookup interface {
	ForPlayer(playerID string) (match.Game, bool)
}

// ScoreSink receives finished, plausible multiplayer results.
type ScoreSink interface {
	RecordScore(ctx context.Context, playerID string, wpm float64) error
}

type record struct {
	samples   []Sample
	completed bool
}

// Tracker owns every player's progress history. Histories are append-only; the first
// sample anchors elapsed time and the last is the current progress.
type Tracker struct {
	clock  clockwork.Clock
	games  GameLookup
	scores ScoreSink

	mu      sync.Mutex
	records map[string]*record
}

func NewTracker(games GameLookup, scores ScoreSink, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		clock:   clock,
		games:   games,
		scores:  scores,
		records: make(map[string]*record),
	}
}

// Start anchors each player's history at (0, at), replacing any earlier history.
func (t *Tracker) Start(players []string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, player := range players {
		t.records[player] = &record{samples: []Sample{{Fraction: 0, At: at}}}
	}
}

// Record appends a progress report. Reports are not required to be monotonic. The first
// report of a complete text scores the player; later ones are only recorded.
func (t *Tracker) Record(ctx context.Context, playerID string, fraction float64, at time.Time) (Outcome, error) {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidFraction, fraction)
	}

	t.mu.Lock()
	rec, ok := t.records[playerID]
	if !ok {
		t.mu.Unlock()
		return Outcome{}, ErrUnknownPlayer
	}
	rec.samples = append(rec.samples, Sample{Fraction: fraction, At: at})
	finishing := fraction == 1 && !rec.completed
	if finishing {
		rec.completed = true
	}
	startedAt := rec.samples[0].At
	t.mu.Unlock()

	if !finishing {
		return Outcome{}, nil
	}
	return t.score(ctx, playerID, at.Sub(startedAt))
}

func (t *Tracker) score(ctx context.Context, playerID string, elapsed time.Duration) (Outcome, error) {
	g, ok := t.games.ForPlayer(playerID)
	if !ok {
		return Outcome{Completed: true}, ErrUnknownPlayer
	}
	out := Outcome{Completed: true, WPM: typing.WPM(g.Text, elapsed)}
	if elapsed <= 0 || out.WPM > constants.MaxPlausibleWPM {
		util.LogWarn("%sDiscarding implausible result for player %s: %.1f wpm over %v", util.ReqPrefix(ctx), playerID, out.WPM, elapsed)
		return out, nil
	}
	if t.scores == nil {
		return out, nil
	}
	if err := t.scores.RecordScore(ctx, playerID, out.WPM); err != nil {
		t.reopen(playerID)
		return out, fmt.Errorf("record score: %w", err)
	}
	out.Recorded = true
	util.LogInfo("%sPlayer %s finished game %s at %.1f wpm", util.ReqPrefix(ctx), playerID, g.ID, out.WPM)
	return out, nil
}

// reopen lets a later complete report score the player again after the sink failed.
func (t *Tracker) reopen(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.records[playerID]; ok {
		rec.completed = false
	}
}

// Current returns the latest fraction and elapsed time for each target, in order. Unknown
// players yield a zero Snapshot.
func (t *Tracker) Current(targets []string) []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo.Map(targets, func(target string, _ int) Snapshot {
		rec, ok := t.records[target]
		if !ok {
			return Snapshot{}
		}
		first, last := rec.samples[0], rec.samples[len(rec.samples)-1]
		return Snapshot{Fraction: last.Fraction, Elapsed: last.At.Sub(first.At)}
	})
}

// All returns a copy of each target's full history, in order. Unknown players yield an
// empty history.
func (t *Tracker) All(targets []string) [][]Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo.Map(targets, func(target string, _ int) []Sample {
		rec, ok := t.records[target]
		if !ok {
			return []Sample{}
		}
		return slices.Clone(rec.samples)
	})
}

// Forget drops the histories of players whose game has been retired. A player already
// sealed into another game keeps the history that game started.
func (t *Tracker) Forget(players []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, player := range players {
		if _, ok := t.games.ForPlayer(player); ok {
			continue
		}
		delete(t.records, player)
	}
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Now is the tracker's clock reading, used by callers to timestamp reports.
func (t *Tracker) Now() time.Time {
	return t.clock.Now()
}
