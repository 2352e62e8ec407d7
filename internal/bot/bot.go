package bot

import (
	"context"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

const (
	pollTimeout    = time.Minute
	DefaultWorkers = 4
)

type Options struct {
	// Workers is the number of goroutines taking updates off the poller.
	Workers int
	// ReplyTimeout bounds one relayed message: completion, store writes and
	// delivery.
	ReplyTimeout time.Duration
}

// Bot is a long-polling Telegram bot: /start gets the introduction, every
// other message goes through the text handler.
type Bot struct {
	*bot.Bot
	text *TextHandler
}

func New(token string, r Receiver, opts Options, log zerolog.Logger, botOpts ...bot.Option) (*Bot, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	cmd := NewCommandHandler(log)
	txt := NewTextHandler(r, opts.ReplyTimeout, log)

	botOpts = append([]bot.Option{
		bot.WithWorkers(workers),
		bot.WithHTTPClient(pollTimeout, &http.Client{Timeout: pollTimeout + 10*time.Second}),
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, u *models.Update) {
			if u.Message != nil {
				txt.Handle(ctx, b, u)
			}
		}),
		bot.WithErrorsHandler(func(err error) {
			log.Warn().Err(err).Msg("[bot] telegram api error")
		}),
	}, botOpts...)

	b, err := bot.New(token, botOpts...)
	if err != nil {
		return nil, err
	}
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, cmd.Handle)
	return &Bot{Bot: b, text: txt}, nil
}

// Start polls until ctx is cancelled, then waits for replies in progress.
func (b *Bot) Start(ctx context.Context) {
	b.Bot.Start(ctx)
	b.Wait()
}

// Wait blocks until every relayed message has been answered.
func (b *Bot) Wait() { b.text.Wait() }
