package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gpt "github.com/sashabaranov/go-openai"

	"relayBot/internal/ai_model"
)

const DefaultModel = gpt.GPT4oMini

var ErrEmptyResponse = errors.New("empty model response")

// Model talks to an OpenAI-compatible chat completions endpoint. Pointing
// BaseURL at another compatible router (Hugging Face, a local server) needs no
// code change.
type Model struct {
	client      *gpt.Client
	model       string
	temperature float32
	log         zerolog.Logger
}

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

func NewModel(opts Options, log zerolog.Logger) *Model {
	cfg := gpt.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &Model{
		client:      gpt.NewClientWithConfig(cfg),
		model:       model,
		temperature: opts.Temperature,
		log:         log.With().Str("component", "openai").Str("model", model).Logger(),
	}
}

func (m *Model) Complete(ctx context.Context, prompt ai_model.Prompt) (string, error) {
	messages := prompt.Messages()
	req := gpt.ChatCompletionRequest{
		Model:       m.model,
		Messages:    make([]gpt.ChatCompletionMessage, 0, len(messages)),
		Temperature: m.temperature,
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, gpt.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}

	start := time.Now()
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *gpt.APIError
		if errors.As(err, &apiErr) {
			m.log.Warn().Int("status", apiErr.HTTPStatusCode).Str("type", apiErr.Type).Msg("[openai.Model.Complete] api error")
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}

	m.log.Debug().
		Dur("duration", time.Since(start)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Int("messages", len(req.Messages)).
		Msg("[openai.Model.Complete] done")

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

var _ ai_model.Completer = (*Model)(nil)
