package bot

import (
	"context"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"relayBot/internal/conversation"
)

const defaultReplyTimeout = 2 * time.Minute

// TextHandler relays text messages. Each message is answered on its own
// goroutine so a slow completion for one chat does not hold the poller.
type TextHandler struct {
	receiver Receiver
	timeout  time.Duration
	inflight conc.WaitGroup
	log      zerolog.Logger
}

func NewTextHandler(r Receiver, timeout time.Duration, log zerolog.Logger) *TextHandler {
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}
	return &TextHandler{
		receiver: r,
		timeout:  timeout,
		log:      log.With().Str("component", "bot/text").Logger(),
	}
}

func (h *TextHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if update.Message.Text == "" {
		if err := sendWithMenu(ctx, b, chatID, conversation.UnsupportedReply); err != nil {
			h.log.Error().Err(err).Int64("chat_id", chatID).Msg("[TextHandler.Handle] SendMessage")
		}
		return
	}

	text := update.Message.Text
	h.inflight.Go(func() {
		// detached from the poller so shutdown lets the reply finish
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		defer cancel()
		h.relay(ctx, b, chatID, text)
	})
}

func (h *TextHandler) relay(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	}); err != nil {
		h.log.Warn().Err(err).Int64("chat_id", chatID).Msg("[TextHandler.relay] SendChatAction")
	}

	userID := strconv.FormatInt(chatID, 10)
	reply := h.receiver.ReceiveMessage(ctx, userID, text)
	if err := NewDeliverer(b).Deliver(ctx, userID, reply); err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("[TextHandler.relay] Deliver")
	}
}

// Wait blocks until every relayed message has been handled.
func (h *TextHandler) Wait() {
	if rec := h.inflight.WaitAndRecover(); rec != nil {
		h.log.Error().Str("panic", rec.String()).Msg("[TextHandler.Wait] relay panicked")
	}
}
