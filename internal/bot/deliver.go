package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"

	"relayBot/internal/conversation"
)

// Deliverer sends replies to Telegram chats addressed by their decimal id.
type Deliverer struct {
	b *bot.Bot
}

func NewDeliverer(b *bot.Bot) *Deliverer {
	return &Deliverer{b: b}
}

func (d *Deliverer) Deliver(ctx context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", userID, err)
	}
	return send(ctx, d.b, chatID, text)
}

var _ conversation.Deliverer = (*Deliverer)(nil)
