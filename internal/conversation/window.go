package conversation

import (
	"context"

	"github.com/rs/zerolog"

	"relayBot/internal/db/turn"
)

const DefaultWindowSize = 10

// Window builds the context presented to the model: the newest turns of a
// user, oldest first, never empty.
type Window struct {
	repo  turn.Repository
	size  int
	clock *Clock
	log   zerolog.Logger
}

func NewWindow(repo turn.Repository, size int, clock *Clock, log zerolog.Logger) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{
		repo:  repo,
		size:  size,
		clock: clock,
		log:   log.With().Str("component", "window").Logger(),
	}
}

func (w *Window) Size() int { return w.size }

// Load returns between 1 and Size turns in ascending order. A user without
// history gets the seed turn, which is persisted at most once per user. A
// failed read is treated as an empty history.
func (w *Window) Load(ctx context.Context, userID string) []turn.Turn {
	turns, err := w.repo.FindRecentTurns(ctx, userID, w.size)
	if err != nil {
		readErr := &StoreReadError{UserID: userID, Err: err}
		w.log.Error().Err(readErr).Str("user_id", userID).Msg("[Window.Load] history unavailable, starting cold")
		turns = nil
	}

	if len(turns) == 0 {
		return []turn.Turn{w.seed(ctx, userID)}
	}

	turn.Sort(turns)
	if len(turns) > w.size {
		turns = turns[len(turns)-w.size:]
	}
	w.clock.Observe(turns[len(turns)-1].CreatedAt)

	w.log.Debug().Str("user_id", userID).Int("count", len(turns)).Msg("[Window.Load] context loaded")
	return turns
}

func (w *Window) seed(ctx context.Context, userID string) turn.Turn {
	s := turn.NewSeed(userID, w.clock.Now())
	if err := w.repo.InsertTurn(ctx, s); err != nil {
		w.log.Error().Err(err).Str("user_id", userID).Msg("[Window.seed] seed not persisted")
	} else {
		w.log.Info().Str("user_id", userID).Msg("[Window.seed] new conversation seeded")
	}
	return s
}
