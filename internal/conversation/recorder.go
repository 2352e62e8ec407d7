package conversation

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"relayBot/internal/db/turn"
)

// Recorder appends a finished exchange to the store.
type Recorder struct {
	repo  turn.Repository
	clock *Clock
	log   zerolog.Logger
}

func NewRecorder(repo turn.Repository, clock *Clock, log zerolog.Logger) *Recorder {
	return &Recorder{
		repo:  repo,
		clock: clock,
		log:   log.With().Str("component", "recorder").Logger(),
	}
}

// Append writes the user turn and the assistant turn as one logical append.
// The assistant turn always orders after its user turn.
func (r *Recorder) Append(ctx context.Context, userID, userText, assistantText string) error {
	userTurn := turn.New(userID, turn.RoleUser, userText, r.clock.Now())
	assistantTurn := turn.New(userID, turn.RoleAssistant, assistantText, r.clock.Now())
	pair := []turn.Turn{userTurn, assistantTurn}

	err := r.repo.InsertTurns(ctx, pair)
	if err == nil {
		return nil
	}

	writeErr := &StoreWriteError{UserID: userID, Total: len(pair), Err: err}
	var partial *turn.PartialWriteError
	if errors.As(err, &partial) {
		writeErr.Written = partial.Written
	}

	if writeErr.Partial() {
		r.log.Error().Err(writeErr).Str("user_id", userID).Int("written", writeErr.Written).
			Msg("[Recorder.Append] consistency defect: exchange partially persisted")
	} else {
		r.log.Error().Err(writeErr).Str("user_id", userID).Msg("[Recorder.Append] exchange not persisted")
	}
	return writeErr
}
