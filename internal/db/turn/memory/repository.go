package memory

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"relayBot/internal/db/turn"
)

// conversation is one user's log. Its mutex serializes every read and write
// for that user.
type conversation struct {
	mu      sync.Mutex
	turns   []turn.Turn
	hasSeed bool
}

// Repository keeps turns in process memory. It is used when no store is
// configured and is lost on restart.
type Repository struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	log           zerolog.Logger
}

func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{
		conversations: make(map[string]*conversation),
		log:           log.With().Str("component", "turn/memory").Logger(),
	}
}

func (r *Repository) get(userID string) *conversation {
	r.mu.RLock()
	c, ok := r.conversations[userID]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.conversations[userID]; !ok {
		c = &conversation{}
		r.conversations[userID] = c
	}
	return c
}

func (r *Repository) FindRecentTurns(_ context.Context, userID string, limit int) ([]turn.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	c := r.get(userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	n := min(limit, len(c.turns))
	out := make([]turn.Turn, 0, n)
	for i := len(c.turns) - 1; i >= len(c.turns)-n; i-- {
		out = append(out, c.turns[i])
	}
	return out, nil
}

func (r *Repository) InsertTurn(_ context.Context, t turn.Turn) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c := r.get(t.UserID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Seed && c.hasSeed {
		r.log.Debug().Str("user_id", t.UserID).Msg("[turn/memory.InsertTurn] seed already present")
		return nil
	}
	c.append(t)
	return nil
}

func (r *Repository) InsertTurns(_ context.Context, turns []turn.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	if err := turn.ValidateAll(turns); err != nil {
		return err
	}

	// Consecutive turns of one user are written under a single lock.
	for start := 0; start < len(turns); {
		end := start + 1
		for end < len(turns) && turns[end].UserID == turns[start].UserID {
			end++
		}
		c := r.get(turns[start].UserID)
		c.mu.Lock()
		for _, t := range turns[start:end] {
			if !(t.Seed && c.hasSeed) {
				c.append(t)
			}
		}
		c.mu.Unlock()
		start = end
	}
	return nil
}

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations = make(map[string]*conversation)
	return nil
}

// append keeps c.turns sorted so FindRecentTurns can read from the tail.
func (c *conversation) append(t turn.Turn) {
	if t.Seed {
		c.hasSeed = true
	}
	i := len(c.turns)
	for i > 0 && turn.Less(t, c.turns[i-1]) {
		i--
	}
	c.turns = append(c.turns, turn.Turn{})
	copy(c.turns[i+1:], c.turns[i:])
	c.turns[i] = t
}

var _ turn.Repository = (*Repository)(nil)
