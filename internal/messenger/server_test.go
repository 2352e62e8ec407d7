package messenger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relayBot/internal/conversation"
)

type fakeReceiver struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeReceiver) ReceiveMessage(_ context.Context, userID, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID+":"+text)
	return "echo " + text
}

type sent struct {
	userID string
	text   string
	action Action
}

type fakeSender struct {
	mu  sync.Mutex
	out []sent
}

func (f *fakeSender) Deliver(_ context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{userID: userID, text: text})
	return nil
}

func (f *fakeSender) SenderAction(_ context.Context, userID string, action Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{userID: userID, action: action})
	return nil
}

func (f *fakeSender) forUser(userID string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []sent
	for _, s := range f.out {
		if s.userID == userID {
			res = append(res, s)
		}
	}
	return res
}

func newTestServer() (*Server, *fakeReceiver, *fakeSender) {
	rcv := &fakeReceiver{}
	snd := &fakeSender{}
	return NewServer(rcv, snd, "secret", zerolog.Nop()), rcv, snd
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Home(t *testing.T) {
	s, _, _ := newTestServer()
	rec := do(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello World", rec.Body.String())
}

func TestServer_Verify(t *testing.T) {
	s, _, _ := newTestServer()

	rec := do(t, s, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=42", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())

	rec = do(t, s, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodGet, "/webhook?hub.challenge=42", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ReceiveText(t *testing.T) {
	s, rcv, snd := newTestServer()

	body := `{"object":"page","entry":[
		{"id":"p","time":1,"messaging":[{"sender":{"id":"u1"},"recipient":{"id":"p"},"message":{"mid":"m1","text":"hello"}}]},
		{"id":"p","time":2,"messaging":[{"sender":{"id":"u2"},"recipient":{"id":"p"},"message":{"mid":"m2","text":"hi"}}]}
	]}`
	rec := do(t, s, http.MethodPost, "/webhook", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "EVENT_RECEIVED", rec.Body.String())

	s.Wait()

	assert.ElementsMatch(t, []string{"u1:hello", "u2:hi"}, rcv.calls)
	assert.Equal(t, []sent{
		{userID: "u1", action: TypingOn},
		{userID: "u1", text: "echo hello"},
		{userID: "u1", action: TypingOff},
	}, snd.forUser("u1"))
	assert.Equal(t, []sent{
		{userID: "u2", action: TypingOn},
		{userID: "u2", text: "echo hi"},
		{userID: "u2", action: TypingOff},
	}, snd.forUser("u2"))
}

func TestServer_ReceiveAttachment(t *testing.T) {
	s, rcv, snd := newTestServer()

	body := `{"object":"page","entry":[{"messaging":[{"sender":{"id":"u1"},"message":{"mid":"m1",
		"attachments":[{"type":"image","payload":{"url":"https://example.com/cat.png"}}]}}]}]}`
	rec := do(t, s, http.MethodPost, "/webhook", body)
	require.Equal(t, http.StatusOK, rec.Code)
	s.Wait()

	assert.Empty(t, rcv.calls)
	out := snd.forUser("u1")
	require.Len(t, out, 3)
	assert.Equal(t, conversation.UnsupportedReply, out[1].text)
}

func TestServer_ReceivePostbackAndEcho(t *testing.T) {
	s, rcv, snd := newTestServer()

	body := `{"object":"page","entry":[
		{"messaging":[{"sender":{"id":"u1"},"postback":{"title":"Yes!","payload":"yes"}}]},
		{"messaging":[{"sender":{"id":"u2"},"postback":{"title":"No!","payload":"no"}}]},
		{"messaging":[{"sender":{"id":"u3"},"message":{"mid":"m3","text":"from page","is_echo":true}}]}
	]}`
	rec := do(t, s, http.MethodPost, "/webhook", body)
	require.Equal(t, http.StatusOK, rec.Code)
	s.Wait()

	assert.Equal(t, []sent{{userID: "u1", text: postbackYesReply}}, snd.forUser("u1"))
	assert.Equal(t, []sent{{userID: "u2", text: postbackNoReply}}, snd.forUser("u2"))
	assert.Empty(t, snd.forUser("u3"))
	assert.Empty(t, rcv.calls)
}

func TestServer_ReceiveRejects(t *testing.T) {
	s, _, _ := newTestServer()

	rec := do(t, s, http.MethodPost, "/webhook", `{"object":"user","entry":[]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/webhook", `{"object":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type panicReceiver struct{}

func (panicReceiver) ReceiveMessage(context.Context, string, string) string {
	panic("boom")
}

func TestServer_HandlerPanicIsContained(t *testing.T) {
	snd := &fakeSender{}
	s := NewServer(panicReceiver{}, snd, "secret", zerolog.Nop())

	body := `{"object":"page","entry":[{"messaging":[{"sender":{"id":"u1"},"message":{"text":"hello"}}]}]}`
	rec := do(t, s, http.MethodPost, "/webhook", body)
	require.Equal(t, http.StatusOK, rec.Code)
	s.Wait()

	// typing indicator is switched off even though no reply was produced
	assert.Equal(t, []sent{
		{userID: "u1", action: TypingOn},
		{userID: "u1", action: TypingOff},
	}, snd.forUser("u1"))
}

type blockingReceiver struct {
	entered chan struct{}
	release chan struct{}
	ctxErr  error
}

func (b *blockingReceiver) ReceiveMessage(ctx context.Context, _, text string) string {
	close(b.entered)
	<-b.release
	b.ctxErr = ctx.Err()
	return "late " + text
}

type ctxSender struct {
	fakeSender
	errs []error
}

func (c *ctxSender) Deliver(ctx context.Context, userID, text string) error {
	c.mu.Lock()
	c.errs = append(c.errs, ctx.Err())
	c.mu.Unlock()
	return c.fakeSender.Deliver(ctx, userID, text)
}

func TestServer_RunDrainsRepliesAfterShutdown(t *testing.T) {
	rcv := &blockingReceiver{entered: make(chan struct{}), release: make(chan struct{})}
	snd := &ctxSender{}
	s := NewServer(rcv, snd, "secret", zerolog.Nop(), WithEventTimeout(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	body := `{"object":"page","entry":[{"messaging":[{"sender":{"id":"u1"},"message":{"text":"hello"}}]}]}`
	rec := do(t, s, http.MethodPost, "/webhook", body)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-rcv.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not dispatched")
	}

	cancel()
	select {
	case <-done:
		t.Fatal("Run returned while a reply was still in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(rcv.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the reply was delivered")
	}

	assert.NoError(t, rcv.ctxErr)
	require.Equal(t, []error{nil}, snd.errs)
	assert.Contains(t, snd.forUser("u1"), sent{userID: "u1", text: "late hello"})
}
