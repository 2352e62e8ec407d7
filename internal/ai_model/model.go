package ai_model

import (
	"context"
	"fmt"
	"strings"

	"relayBot/internal/db/turn"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const DefaultSystemPrompt = "You are a helpful assistant chatting with a user over a messaging app. " +
	"The messages before the last one are the conversation so far, oldest first. " +
	"Answer the last user message, using the earlier messages as context. Keep answers short and plain-text."

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is one completion request: an instruction, the prior turns in
// ascending order and the new user message.
type Prompt struct {
	System  string      `json:"system"`
	History []turn.Turn `json:"history"`
	Message string      `json:"message"`
}

// Completer is a remote language model. Implementations make a single attempt
// and honour ctx cancellation.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Messages renders the prompt as role-tagged chat messages.
func (p Prompt) Messages() []Message {
	out := make([]Message, 0, len(p.History)+2)
	if s := strings.TrimSpace(p.System); s != "" {
		out = append(out, Message{Role: RoleSystem, Content: s})
	}
	for _, t := range p.History {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		out = append(out, Message{Role: string(t.Role), Content: t.Content})
	}
	return append(out, Message{Role: RoleUser, Content: p.Message})
}

// Text renders the same content as a single tagged transcript for completers
// that only take plain text.
func (p Prompt) Text() string {
	var b strings.Builder
	for _, m := range p.Messages() {
		_, _ = fmt.Fprintf(&b, "[%s]: %s\n", m.Role, m.Content)
	}
	b.WriteString("[assistant]:")
	return b.String()
}
