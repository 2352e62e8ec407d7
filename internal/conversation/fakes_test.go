package conversation

import (
	"context"
	"errors"
	"sync"

	"relayBot/internal/ai_model"
	"relayBot/internal/db/turn"
)

type completerFunc func(ctx context.Context, p ai_model.Prompt) (string, error)

func (f completerFunc) Complete(ctx context.Context, p ai_model.Prompt) (string, error) {
	return f(ctx, p)
}

// recordingCompleter answers with a fixed reply and keeps every prompt.
type recordingCompleter struct {
	mu      sync.Mutex
	reply   string
	prompts []ai_model.Prompt
}

func (c *recordingCompleter) Complete(_ context.Context, p ai_model.Prompt) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, p)
	return c.reply, nil
}

func (c *recordingCompleter) last() ai_model.Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts[len(c.prompts)-1]
}

// faultyRepo wraps a repository and injects failures.
type faultyRepo struct {
	turn.Repository
	readErr   error
	writeErr  error
	insertErr error
	partial   bool
}

func (r *faultyRepo) InsertTurn(ctx context.Context, t turn.Turn) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	return r.Repository.InsertTurn(ctx, t)
}

func (r *faultyRepo) FindRecentTurns(ctx context.Context, userID string, limit int) ([]turn.Turn, error) {
	if r.readErr != nil {
		return nil, r.readErr
	}
	return r.Repository.FindRecentTurns(ctx, userID, limit)
}

func (r *faultyRepo) InsertTurns(ctx context.Context, turns []turn.Turn) error {
	if r.writeErr == nil {
		return r.Repository.InsertTurns(ctx, turns)
	}
	if r.partial {
		if err := r.Repository.InsertTurns(ctx, turns[:1]); err != nil {
			return err
		}
		return &turn.PartialWriteError{Written: 1, Total: len(turns), Err: r.writeErr}
	}
	return r.writeErr
}

// oversizedRepo ignores the limit and returns its whole log in store order.
type oversizedRepo struct {
	turn.Repository
	turns []turn.Turn
}

func (r *oversizedRepo) FindRecentTurns(context.Context, string, int) ([]turn.Turn, error) {
	return append([]turn.Turn(nil), r.turns...), nil
}

var errBoom = errors.New("boom")
