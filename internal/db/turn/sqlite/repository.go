package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"relayBot/internal/db/turn"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type RepositorySQlite struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepositorySQlite(db *sql.DB, log zerolog.Logger) *RepositorySQlite {
	return &RepositorySQlite{
		db:  db,
		log: log.With().Str("component", "turn/sqlite").Logger(),
	}
}

func (r *RepositorySQlite) Close() error {
	r.log.Info().Msg("[turn/RepositorySQlite.Close] closing db connection")
	return r.db.Close()
}

func (r *RepositorySQlite) FindRecentTurns(ctx context.Context, userID string, limit int) ([]turn.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, selectRecentByUserId, userID, limit)
	if err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Msg("[turn/RepositorySQlite.FindRecentTurns] select failed")
		return nil, fmt.Errorf("select turns by user_id: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			r.log.Warn().Err(err).Msg("[turn/RepositorySQlite.FindRecentTurns] failed to close rows")
		}
	}(rows)

	var turns []turn.Turn
	for rows.Next() {
		var m Turn
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt, &m.Seed); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turns = append(turns, toDomain(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	r.log.Debug().Str("user_id", userID).Int("count", len(turns)).Msg("[turn/RepositorySQlite.FindRecentTurns] loaded")
	return turns, nil
}

func (r *RepositorySQlite) InsertTurn(ctx context.Context, t turn.Turn) error {
	if err := t.Validate(); err != nil {
		return err
	}
	inserted, err := insertOne(ctx, r.db, t)
	if err != nil {
		r.log.Error().Err(err).Str("user_id", t.UserID).Str("role", string(t.Role)).Msg("[turn/RepositorySQlite.InsertTurn] insert failed")
		return err
	}
	if t.Seed && !inserted {
		r.log.Debug().Str("user_id", t.UserID).Msg("[turn/RepositorySQlite.InsertTurn] seed already present")
	}
	return nil
}

// InsertTurns writes all turns in one transaction, so a failure leaves none of
// them behind.
func (r *RepositorySQlite) InsertTurns(ctx context.Context, turns []turn.Turn) (err error) {
	if len(turns) == 0 {
		return nil
	}
	if err := turn.ValidateAll(turns); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.log.Warn().Err(rbErr).Msg("[turn/RepositorySQlite.InsertTurns] rollback failed")
			}
		}
	}()

	for _, t := range turns {
		if _, err = insertOne(ctx, tx, t); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit turns: %w", err)
	}

	r.log.Debug().Str("user_id", turns[0].UserID).Int("count", len(turns)).Msg("[turn/RepositorySQlite.InsertTurns] success")
	return nil
}

func insertOne(ctx context.Context, ex execer, t turn.Turn) (bool, error) {
	if t.Seed {
		res, err := ex.ExecContext(ctx, insertSeed, t.ID, t.UserID, string(t.Role), t.Content, t.CreatedAt.UnixNano())
		if err != nil {
			return false, fmt.Errorf("insert seed turn: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("seed rows affected: %w", err)
		}
		return n > 0, nil
	}

	if _, err := ex.ExecContext(ctx, insert, t.ID, t.UserID, string(t.Role), t.Content, t.CreatedAt.UnixNano(), false); err != nil {
		return false, fmt.Errorf("insert turn: %w", err)
	}
	return true, nil
}

func toDomain(m Turn) turn.Turn {
	return turn.Turn{
		ID:        m.ID,
		UserID:    m.UserID,
		Role:      turn.Role(m.Role),
		Content:   m.Content,
		CreatedAt: time.Unix(0, m.CreatedAt).UTC(),
		Seed:      m.Seed,
	}
}

var _ turn.Repository = (*RepositorySQlite)(nil)
