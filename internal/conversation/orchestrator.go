package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"relayBot/internal/ai_model"
	"relayBot/internal/db/turn"
)

const (
	FallbackReply    = "Sorry, I am having trouble communicating with my brain right now. Please try again later."
	UnsupportedReply = "Sorry, I can only process text messages for now."
)

const DefaultCompletionTimeout = 60 * time.Second

var errEmptyReply = errors.New("completion returned no text")

// Deliverer sends a reply back to a user over some transport.
type Deliverer interface {
	Deliver(ctx context.Context, userID, text string) error
}

type Options struct {
	WindowSize   int
	Timeout      time.Duration
	SystemPrompt string
}

type Orchestrator struct {
	window    *Window
	recorder  *Recorder
	completer ai_model.Completer
	system    string
	timeout   time.Duration
	log       zerolog.Logger
}

// New wires a Window and a Recorder sharing one clock over repo.
func New(repo turn.Repository, completer ai_model.Completer, opts Options, log zerolog.Logger) *Orchestrator {
	clock := NewClock()
	return NewOrchestrator(
		NewWindow(repo, opts.WindowSize, clock, log),
		NewRecorder(repo, clock, log),
		completer,
		opts,
		log,
	)
}

func NewOrchestrator(window *Window, recorder *Recorder, completer ai_model.Completer, opts Options, log zerolog.Logger) *Orchestrator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCompletionTimeout
	}
	system := opts.SystemPrompt
	if strings.TrimSpace(system) == "" {
		system = ai_model.DefaultSystemPrompt
	}
	return &Orchestrator{
		window:    window,
		recorder:  recorder,
		completer: completer,
		system:    system,
		timeout:   timeout,
		log:       log.With().Str("component", "orchestrator").Logger(),
	}
}

// ReceiveMessage is the entry point for transports. Text that carries nothing
// to answer gets the static reply and leaves the store untouched.
func (o *Orchestrator) ReceiveMessage(ctx context.Context, userID, text string) string {
	if strings.TrimSpace(text) == "" {
		o.log.Debug().Str("user_id", userID).Msg("[Orchestrator.ReceiveMessage] empty text")
		return UnsupportedReply
	}
	return o.Handle(ctx, userID, text)
}

// Handle answers text for userID using the stored conversation as context and
// records the exchange. It always returns a reply.
func (o *Orchestrator) Handle(ctx context.Context, userID, text string) string {
	history := o.window.Load(ctx, userID)
	prompt := ai_model.Prompt{
		System:  o.system,
		History: history,
		Message: text,
	}

	reply, err := o.complete(ctx, prompt)
	if err != nil {
		svcErr := &ServiceError{UserID: userID, Err: err}
		o.log.Error().Err(svcErr).Str("user_id", userID).Bool("timeout", svcErr.Timeout()).
			Msg("[Orchestrator.Handle] completion failed, using fallback")
		reply = FallbackReply
	}

	if err := o.recorder.Append(ctx, userID, text, reply); err != nil {
		o.log.Warn().Err(err).Str("user_id", userID).Msg("[Orchestrator.Handle] reply returned unrecorded")
	}

	o.log.Info().Str("user_id", userID).Int("context", len(history)).Msg("[Orchestrator.Handle] replied")
	return reply
}

func (o *Orchestrator) complete(ctx context.Context, prompt ai_model.Prompt) (reply string, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completer panic: %v", r)
		}
	}()

	reply, err = o.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errEmptyReply
	}
	return reply, nil
}
