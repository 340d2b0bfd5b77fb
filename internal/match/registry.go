package match

import (
	"slices"
	"sync"
	"time"
)

// Game is a sealed group of players racing on one text. Games are immutable once registered.
type Game struct {
	ID        string
	Text      string
	Players   []string
	CreatedAt time.Time
}

func (g Game) clone() Game {
	g.Players = slices.Clone(g.Players)
	return g
}

// Registry maps game ids and player ids to sealed games.
type Registry struct {
	mu       sync.RWMutex
	games    map[string]Game
	byPlayer map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		games:    make(map[string]Game),
		byPlayer: make(map[string]string),
	}
}

func (r *Registry) Register(g Game) {
	g = g.clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.ID] = g
	for _, player := range g.Players {
		r.byPlayer[player] = g.ID
	}
}

// Get returns the game registered under gameID.
func (r *Registry) Get(gameID string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[gameID]
	if !ok {
		return Game{}, false
	}
	return g.clone(), true
}

// ForPlayer returns the game the player was sealed into.
func (r *Registry) ForPlayer(playerID string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gameID, ok := r.byPlayer[playerID]
	if !ok {
		return Game{}, false
	}
	g, ok := r.games[gameID]
	if !ok {
		return Game{}, false
	}
	return g.clone(), true
}

// PruneBefore removes games created before cutoff together with their player mappings and
// returns the removed games.
func (r *Registry) PruneBefore(cutoff time.Time) []Game {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Game
	for id, g := range r.games {
		if !g.CreatedAt.Before(cutoff) {
			continue
		}
		for _, player := range g.Players {
			if r.byPlayer[player] == id {
				delete(r.byPlayer, player)
			}
		}
		delete(r.games, id)
		removed = append(removed, g)
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}
