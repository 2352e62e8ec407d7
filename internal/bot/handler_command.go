package bot

import (
	"context"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"relayBot/internal/db/turn"
)

// CommandHandler answers /start with the same introduction a new
// conversation is seeded with.
type CommandHandler struct {
	log zerolog.Logger
}

func NewCommandHandler(log zerolog.Logger) *CommandHandler {
	return &CommandHandler{log: log.With().Str("component", "bot/command").Logger()}
}

func (h *CommandHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}
	userID := strconv.FormatInt(update.Message.Chat.ID, 10)

	if err := NewDeliverer(b).Deliver(ctx, userID, turn.SeedContent); err != nil {
		h.log.Error().Err(err).Str("chat_id", userID).Msg("[CommandHandler.Handle] Deliver")
	}
}
