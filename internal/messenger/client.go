package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"relayBot/internal/conversation"
)

const clientTimeout = 30 * time.Second

// Client posts to the Messenger Send API.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	log      zerolog.Logger
}

func NewClient(graphURL, pageAccessToken string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: clientTimeout}
	}
	return &Client{
		endpoint: strings.TrimRight(graphURL, "/") + "/me/messages",
		token:    pageAccessToken,
		http:     httpClient,
		log:      log.With().Str("component", "messenger/client").Logger(),
	}
}

func (c *Client) Deliver(ctx context.Context, userID, text string) error {
	return c.send(ctx, sendRequest{
		Recipient: Party{ID: userID},
		Message:   &sendMessage{Text: text},
	})
}

func (c *Client) SenderAction(ctx context.Context, userID string, action Action) error {
	return c.send(ctx, sendRequest{
		Recipient:    Party{ID: userID},
		SenderAction: action,
	})
}

func (c *Client) send(ctx context.Context, body sendRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	u := c.endpoint + "?" + url.Values{"access_token": {c.token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send api: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if cerr := Body.Close(); cerr != nil {
			c.log.Warn().Err(cerr).Msg("[Client.send] Body.Close()")
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read send api response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var sr sendResponse
		if jerr := json.Unmarshal(raw, &sr); jerr == nil && sr.Error != nil {
			return fmt.Errorf("send api status %d: %s (code %d)", resp.StatusCode, sr.Error.Message, sr.Error.Code)
		}
		return fmt.Errorf("send api status %d", resp.StatusCode)
	}

	c.log.Debug().Str("user_id", body.Recipient.ID).Str("action", string(body.SenderAction)).Msg("[Client.send] sent")
	return nil
}

var _ conversation.Deliverer = (*Client)(nil)
