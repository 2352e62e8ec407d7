package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relayBot/internal/ai_model"
	"relayBot/internal/db/turn"
	"relayBot/internal/db/turn/memory"
)

func stored(t *testing.T, repo turn.Repository, userID string) []turn.Turn {
	t.Helper()
	got, err := repo.FindRecentTurns(context.Background(), userID, 1000)
	require.NoError(t, err)
	turn.Sort(got)
	return got
}

func TestOrchestrator_WindowOfFour(t *testing.T) {
	repo := memory.NewRepository(zerolog.Nop())
	completer := &recordingCompleter{reply: "Hello! How can I help?"}
	o := New(repo, completer, Options{WindowSize: 4}, zerolog.Nop())
	ctx := context.Background()

	reply := o.Handle(ctx, "u1", "hello")
	assert.Equal(t, "Hello! How can I help?", reply)

	first := completer.last()
	require.Len(t, first.History, 1)
	assert.True(t, first.History[0].Seed)
	assert.Equal(t, "hello", first.Message)
	assert.Equal(t, ai_model.DefaultSystemPrompt, first.System)

	all := stored(t, repo, "u1")
	require.Len(t, all, 3)
	assert.True(t, all[0].Seed)
	assert.Equal(t, []string{turn.SeedContent, "hello", "Hello! How can I help?"}, contents(all))

	completer.reply = "Fine, thanks."
	o.Handle(ctx, "u1", "how are you")

	second := completer.last()
	assert.Equal(t, []string{turn.SeedContent, "hello", "Hello! How can I help?"}, contents(second.History))
	assert.Equal(t, "how are you", second.Message)

	assert.Len(t, stored(t, repo, "u1"), 5)

	window := o.window.Load(ctx, "u1")
	assert.Equal(t, []string{"hello", "Hello! How can I help?", "how are you", "Fine, thanks."}, contents(window))
}

func TestOrchestrator_OrderAfterManyCalls(t *testing.T) {
	repo := memory.NewRepository(zerolog.Nop())
	o := New(repo, &recordingCompleter{reply: "ok"}, Options{WindowSize: 6}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		o.Handle(ctx, "u1", "msg")
	}

	got := o.window.Load(ctx, "u1")
	require.Len(t, got, 6)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].CreatedAt.After(got[i-1].CreatedAt), "strictly ascending")
	}
	for i := 0; i < len(got); i += 2 {
		assert.Equal(t, turn.RoleUser, got[i].Role)
		assert.Equal(t, turn.RoleAssistant, got[i+1].Role)
	}
}

func TestOrchestrator_Fallbacks(t *testing.T) {
	tests := []struct {
		name      string
		completer ai_model.Completer
	}{
		{"error", completerFunc(func(context.Context, ai_model.Prompt) (string, error) {
			return "", errBoom
		})},
		{"blank reply", completerFunc(func(context.Context, ai_model.Prompt) (string, error) {
			return "  \n", nil
		})},
		{"panic", completerFunc(func(context.Context, ai_model.Prompt) (string, error) {
			panic("unexpected")
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.NewRepository(zerolog.Nop())
			o := New(repo, tt.completer, Options{WindowSize: 4}, zerolog.Nop())

			reply := o.Handle(context.Background(), "u1", "hello")
			assert.Equal(t, FallbackReply, reply)

			all := stored(t, repo, "u1")
			require.Len(t, all, 3)
			assert.Equal(t, "hello", all[1].Content)
			assert.Equal(t, turn.RoleAssistant, all[2].Role)
			assert.Equal(t, FallbackReply, all[2].Content)
		})
	}
}

func TestOrchestrator_Timeout(t *testing.T) {
	repo := memory.NewRepository(zerolog.Nop())
	slow := completerFunc(func(ctx context.Context, _ ai_model.Prompt) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	o := New(repo, slow, Options{WindowSize: 4, Timeout: 20 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	reply := o.Handle(context.Background(), "u1", "hello")
	assert.Equal(t, FallbackReply, reply)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, stored(t, repo, "u1"), 3)
}

func TestOrchestrator_StoreFailuresStillReply(t *testing.T) {
	repo := &faultyRepo{Repository: memory.NewRepository(zerolog.Nop()), readErr: errBoom, writeErr: errBoom}
	completer := &recordingCompleter{reply: "still here"}
	o := New(repo, completer, Options{WindowSize: 4}, zerolog.Nop())

	assert.Equal(t, "still here", o.Handle(context.Background(), "u1", "hello"))
	require.Len(t, completer.last().History, 1)
	assert.True(t, completer.last().History[0].Seed)
}

func TestOrchestrator_ReceiveMessageRejectsEmpty(t *testing.T) {
	repo := memory.NewRepository(zerolog.Nop())
	completer := &recordingCompleter{reply: "x"}
	o := New(repo, completer, Options{}, zerolog.Nop())

	assert.Equal(t, UnsupportedReply, o.ReceiveMessage(context.Background(), "u1", "  \t"))
	assert.Empty(t, completer.prompts)
	assert.Empty(t, stored(t, repo, "u1"))

	assert.Equal(t, "x", o.ReceiveMessage(context.Background(), "u1", "hi"))
}

func TestOrchestrator_ConcurrentFirstContact(t *testing.T) {
	repo := memory.NewRepository(zerolog.Nop())
	o := New(repo, &recordingCompleter{reply: "ok"}, Options{WindowSize: 10}, zerolog.Nop())

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "ok", o.Handle(context.Background(), "u1", "hi"))
		}()
	}
	wg.Wait()

	all := stored(t, repo, "u1")
	assert.Len(t, all, 1+2*n)

	seeds := 0
	for _, tr := range all {
		if tr.Seed {
			seeds++
		}
	}
	assert.Equal(t, 1, seeds)
}

func TestOrchestrator_CustomSystemPrompt(t *testing.T) {
	completer := &recordingCompleter{reply: "ok"}
	o := New(memory.NewRepository(zerolog.Nop()), completer, Options{SystemPrompt: "be terse"}, zerolog.Nop())
	o.Handle(context.Background(), "u1", "hi")
	assert.Equal(t, "be terse", completer.last().System)
}
