// Package match batches waiting players into multiplayer games.
//
// A player moves Absent -> Waiting -> Sealed. Waiting entries are heartbeats: a player who
// does not call Join again within QueueTimeout is dropped. A group is sealed as soon as
// MaxPlayers are waiting, or once the longest waiter has waited MaxWait and at least
// MinPlayers are present. Sealed players always get their game back from Join.
package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	paragraph "github.com/CodeAndHammer/typeduel/internal/paragraph"
	util "github.com/CodeAndHammer/typeduel/internal/util"
)

var ErrEmptyPlayerID = errors.New("player id is required")

type Options struct {
	MinPlayers   int
	MaxPlayers   int
	QueueTimeout time.Duration
	MaxWait      time.Duration
}

func DefaultOptions() Options {
	return Options{
		MinPlayers:   2,
		MaxPlayers:   4,
		QueueTimeout: time.Second,
		MaxWait:      5 * time.Second,
	}
}

// Entry is one waiting player.
type Entry struct {
	PlayerID   string
	JoinedAt   time.Time
	LastSeenAt time.Time
}

// Result is what a Join call observes: either a sealed game or the current queue size.
type Result struct {
	Start      bool
	GameID     string
	Text       string
	Players    []string
	NumWaiting int
}

// ProgressStarter is told about every sealed game so per-player progress can be anchored.
type ProgressStarter interface {
	Start(players []string, at time.Time)
}

type Queue struct {
	opts       Options
	clock      clockwork.Clock
	paragraphs paragraph.Supplier
	games      *Registry
	progress   ProgressStarter

	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
}

func NewQueue(opts Options, paragraphs paragraph.Supplier, games *Registry, progress ProgressStarter, clock clockwork.Clock) *Queue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Queue{
		opts:       opts,
		clock:      clock,
		paragraphs: paragraphs,
		games:      games,
		progress:   progress,
		entries:    make(map[string]*Entry),
	}
}

// Join records a heartbeat for playerID and seals a game when the queue is ready.
//
// The supplier is asked for a paragraph only when the heartbeat finds the queue ready to
// seal, and never while the queue is held. The seal decision is repeated under the lock
// before the waiting set becomes a game.
func (q *Queue) Join(ctx context.Context, playerID string) (Result, error) {
	if playerID == "" {
		return Result{}, ErrEmptyPlayerID
	}
	if g, ok := q.games.ForPlayer(playerID); ok {
		return sealedResult(g), nil
	}

	q.mu.Lock()
	if res, done := q.heartbeatLocked(playerID); done {
		q.mu.Unlock()
		return res, nil
	}
	q.mu.Unlock()

	text, fetchErr := q.paragraphs.Next(ctx, nil)

	q.mu.Lock()
	if res, done := q.heartbeatLocked(playerID); done {
		q.mu.Unlock()
		return res, nil
	}
	if fetchErr != nil {
		waiting := len(q.order)
		q.mu.Unlock()
		util.LogWarn("%sCould not seal game of %d players: %v", util.ReqPrefix(ctx), waiting, fetchErr)
		return Result{}, fmt.Errorf("fetch paragraph: %w", fetchErr)
	}

	g := q.sealLocked(text, q.clock.Now())
	q.mu.Unlock()

	util.LogInfo("%sSealed game %s with %d players", util.ReqPrefix(ctx), g.ID, len(g.Players))
	return sealedResult(g), nil
}

// heartbeatLocked refreshes playerID's queue entry and reports the result to return when
// the join needs no seal: the player's existing game or the current waiting count.
func (q *Queue) heartbeatLocked(playerID string) (Result, bool) {
	if g, ok := q.games.ForPlayer(playerID); ok {
		return sealedResult(g), true
	}
	now := q.clock.Now()
	q.upsertLocked(playerID, now)
	q.evictLocked(now)
	if !q.shouldSealLocked(now) {
		return Result{NumWaiting: len(q.order)}, true
	}
	return Result{}, false
}

// Waiting returns the number of queued players.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

func (q *Queue) upsertLocked(playerID string, now time.Time) {
	if e, ok := q.entries[playerID]; ok {
		e.LastSeenAt = now
		return
	}
	q.entries[playerID] = &Entry{PlayerID: playerID, JoinedAt: now, LastSeenAt: now}
	q.order = append(q.order, playerID)
}

func (q *Queue) evictLocked(now time.Time) {
	q.order = lo.Filter(q.order, func(playerID string, _ int) bool {
		if now.Sub(q.entries[playerID].LastSeenAt) > q.opts.QueueTimeout {
			delete(q.entries, playerID)
			return false
		}
		return true
	})
}

func (q *Queue) shouldSealLocked(now time.Time) bool {
	waiting := len(q.order)
	if waiting >= q.opts.MaxPlayers {
		return true
	}
	if waiting < q.opts.MinPlayers {
		return false
	}
	oldest := lo.MinBy(q.order, func(a, b string) bool {
		return q.entries[a].JoinedAt.Before(q.entries[b].JoinedAt)
	})
	return now.Sub(q.entries[oldest].JoinedAt) >= q.opts.MaxWait
}

// sealLocked turns the whole waiting set into a game. Registration and progress anchoring
// happen before mu is released so no caller can observe a sealed player outside a game.
func (q *Queue) sealLocked(text string, now time.Time) Game {
	g := Game{
		ID:        uuid.NewString(),
		Text:      text,
		Players:   q.order,
		CreatedAt: now,
	}
	q.games.Register(g)
	if q.progress != nil {
		q.progress.Start(g.Players, now)
	}
	q.entries = make(map[string]*Entry)
	q.order = nil
	return g
}

func sealedResult(g Game) Result {
	return Result{
		Start:   true,
		GameID:  g.ID,
		Text:    g.Text,
		Players: g.Players,
	}
}
