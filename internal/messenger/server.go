package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"relayBot/internal/conversation"
)

const (
	maxBodyBytes        = 1 << 20
	shutdownTimeout     = 10 * time.Second
	defaultEventTimeout = 2 * time.Minute
)

const (
	postbackYesReply = "Thanks!"
	postbackNoReply  = "Oops, try sending another image."
)

// Receiver answers one inbound text message.
type Receiver interface {
	ReceiveMessage(ctx context.Context, userID, text string) string
}

// Sender is the outbound half of the Messenger platform.
type Sender interface {
	conversation.Deliverer
	SenderAction(ctx context.Context, userID string, action Action) error
}

type Server struct {
	receiver    Receiver
	sender      Sender
	verifyToken string
	router      *mux.Router

	// eventTimeout bounds one dispatched event. Events are detached from the
	// request and from server shutdown, so a reply in progress still gets
	// recorded and delivered while Run drains.
	eventTimeout time.Duration
	pending      sync.WaitGroup
	log          zerolog.Logger
}

type Option func(*Server)

// WithEventTimeout bounds the handling of a single event: completion, store
// writes and delivery.
func WithEventTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.eventTimeout = d
		}
	}
}

func NewServer(receiver Receiver, sender Sender, verifyToken string, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		receiver:     receiver,
		sender:       sender,
		verifyToken:  verifyToken,
		eventTimeout: defaultEventTimeout,
		log:          log.With().Str("component", "messenger").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.home).Methods(http.MethodGet)
	r.HandleFunc("/webhook", s.verify).Methods(http.MethodGet)
	r.HandleFunc("/webhook", s.receive).Methods(http.MethodPost)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then drains in-flight replies.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("[Server.Run] listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("[Server.Run] shutdown")
	}
	s.Wait()
	s.log.Info().Msg("[Server.Run] stopped")
	return nil
}

// Wait blocks until every dispatched event has been handled.
func (s *Server) Wait() { s.pending.Wait() }

func (s *Server) home(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "Hello World")
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, token, challenge := q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge")

	if mode == "" || token == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || token != s.verifyToken {
		s.log.Warn().Str("mode", mode).Msg("[Server.verify] verification rejected")
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	s.log.Info().Msg("[Server.verify] WEBHOOK_VERIFIED")
	_, _ = io.WriteString(w, challenge)
}

func (s *Server) receive(w http.ResponseWriter, r *http.Request) {
	var body Webhook
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.log.Warn().Err(err).Msg("[Server.receive] malformed body")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if body.Object != "page" {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	var events []Event
	for _, e := range body.Entry {
		if len(e.Messaging) == 0 {
			continue
		}
		events = append(events, e.Messaging[0])
	}
	s.dispatch(events)

	_, _ = io.WriteString(w, "EVENT_RECEIVED")
}

func (s *Server) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.eventTimeout)
		defer cancel()

		var wg conc.WaitGroup
		for _, ev := range events {
			ev := ev
			wg.Go(func() { s.handleEvent(ctx, ev) })
		}
		if rec := wg.WaitAndRecover(); rec != nil {
			s.log.Error().Str("panic", rec.String()).Msg("[Server.dispatch] event handler panicked")
		}
	}()
}

func (s *Server) handleEvent(ctx context.Context, ev Event) {
	psid := ev.Sender.ID
	if psid == "" {
		return
	}

	switch {
	case ev.Message != nil:
		if ev.Message.IsEcho {
			return
		}
		s.handleMessage(ctx, psid, ev.Message)
	case ev.Postback != nil:
		s.handlePostback(ctx, psid, ev.Postback)
	default:
		s.log.Debug().Str("user_id", psid).Msg("[Server.handleEvent] unhandled event")
	}
}

func (s *Server) handleMessage(ctx context.Context, psid string, m *Message) {
	s.action(ctx, psid, TypingOn)
	defer s.action(ctx, psid, TypingOff)

	reply := conversation.UnsupportedReply
	if m.Text != "" {
		reply = s.receiver.ReceiveMessage(ctx, psid, m.Text)
	}
	s.deliver(ctx, psid, reply)
}

func (s *Server) handlePostback(ctx context.Context, psid string, p *Postback) {
	switch p.Payload {
	case "yes":
		s.deliver(ctx, psid, postbackYesReply)
	case "no":
		s.deliver(ctx, psid, postbackNoReply)
	default:
		s.log.Debug().Str("user_id", psid).Str("payload", p.Payload).Msg("[Server.handlePostback] ignored")
	}
}

func (s *Server) deliver(ctx context.Context, psid, text string) {
	if err := s.sender.Deliver(ctx, psid, text); err != nil {
		s.log.Error().Err(err).Str("user_id", psid).Msg("[Server.deliver] unable to send message")
	}
}

func (s *Server) action(ctx context.Context, psid string, a Action) {
	if err := s.sender.SenderAction(ctx, psid, a); err != nil {
		s.log.Warn().Err(err).Str("user_id", psid).Str("action", string(a)).Msg("[Server.action] sender action failed")
	}
}
