// Package turntest holds the behaviour every turn.Repository must share.
package turntest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relayBot/internal/db/turn"
)

// Run exercises a fresh repository from newRepo in every subtest.
func Run(t *testing.T, newRepo func(t *testing.T) turn.Repository) {
	t.Run("EmptyHistory", func(t *testing.T) {
		r := newRepo(t)
		turns, err := r.FindRecentTurns(context.Background(), "nobody", 10)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})

	t.Run("NewestFirstWithLimit", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		base := time.Unix(1_700_000_000, 0).UTC()

		var all []turn.Turn
		for i := 0; i < 5; i++ {
			all = append(all,
				turn.New("u1", turn.RoleUser, fmt.Sprintf("q%d", i), base.Add(time.Duration(2*i)*time.Millisecond)),
				turn.New("u1", turn.RoleAssistant, fmt.Sprintf("a%d", i), base.Add(time.Duration(2*i+1)*time.Millisecond)),
			)
		}
		for i := 0; i < len(all); i += 2 {
			require.NoError(t, r.InsertTurns(ctx, all[i:i+2]))
		}
		require.NoError(t, r.InsertTurn(ctx, turn.New("u2", turn.RoleUser, "other", base)))

		got, err := r.FindRecentTurns(ctx, "u1", 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"a4", "q4", "a3"}, contents(got))

		got, err = r.FindRecentTurns(ctx, "u1", 100)
		require.NoError(t, err)
		assert.Len(t, got, 10)

		got, err = r.FindRecentTurns(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		at := time.Unix(1_700_000_000, 123456789).UTC()
		in := turn.New("u1", turn.RoleUser, "héllo\nwörld", at)
		require.NoError(t, r.InsertTurn(ctx, in))

		got, err := r.FindRecentTurns(ctx, "u1", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, in.ID, got[0].ID)
		assert.Equal(t, in.Role, got[0].Role)
		assert.Equal(t, in.Content, got[0].Content)
		assert.True(t, in.CreatedAt.Equal(got[0].CreatedAt))
		assert.False(t, got[0].Seed)
	})

	t.Run("SameTickUserFirst", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		at := time.Unix(1_700_000_000, 0).UTC()
		require.NoError(t, r.InsertTurns(ctx, []turn.Turn{
			turn.New("u1", turn.RoleUser, "q", at),
			turn.New("u1", turn.RoleAssistant, "a", at),
		}))

		got, err := r.FindRecentTurns(ctx, "u1", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "q"}, contents(got))
	})

	t.Run("SeedOnce", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		at := time.Unix(1_700_000_000, 0).UTC()
		require.NoError(t, r.InsertTurn(ctx, turn.NewSeed("u1", at)))
		require.NoError(t, r.InsertTurn(ctx, turn.NewSeed("u1", at.Add(time.Second))))

		got, err := r.FindRecentTurns(ctx, "u1", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Seed)
		assert.Equal(t, turn.SeedContent, got[0].Content)
	})

	t.Run("ConcurrentSeed", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, r.InsertTurn(ctx, turn.NewSeed("u1", time.Now())))
			}()
		}
		wg.Wait()

		got, err := r.FindRecentTurns(ctx, "u1", 10)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		bad := turn.New("", turn.RoleUser, "x", time.Now())
		assert.ErrorIs(t, r.InsertTurn(ctx, bad), turn.ErrInvalidTurn)
		assert.ErrorIs(t, r.InsertTurns(ctx, []turn.Turn{turn.New("u1", turn.RoleUser, "ok", time.Now()), bad}), turn.ErrInvalidTurn)

		got, err := r.FindRecentTurns(ctx, "u1", 10)
		require.NoError(t, err)
		assert.Empty(t, got, "a rejected batch writes nothing")
	})
}

func contents(turns []turn.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Content)
	}
	return out
}
