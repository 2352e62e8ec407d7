package turn

import (
	"context"
	"fmt"
)

// Repository is a per-user append-only log of turns.
//
// FindRecentTurns returns at most limit turns, newest first. InsertTurn appends
// a single turn; when the turn carries the seed marker the insert is
// upsert-if-absent, so a user never ends up with two seeds. InsertTurns appends
// several turns as one logical write and reports a partial write with
// *PartialWriteError.
type Repository interface {
	FindRecentTurns(ctx context.Context, userID string, limit int) ([]Turn, error)
	InsertTurn(ctx context.Context, t Turn) error
	InsertTurns(ctx context.Context, turns []Turn) error
	Close() error
}

type PartialWriteError struct {
	Written int
	Total   int
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: %d of %d turns persisted: %v", e.Written, e.Total, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// ValidateAll checks every turn before a batch write.
func ValidateAll(turns []Turn) error {
	for i, t := range turns {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
	}
	return nil
}
