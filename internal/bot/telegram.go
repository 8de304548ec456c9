package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hazz-dev/shipcheck/internal/fault"
)

// Update is an incoming Telegram update. Only text messages are used.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is a Telegram chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text"`
}

// Chat identifies where a message came from and where replies go.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// User is the sender of a message.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// Client talks to the Telegram Bot API over HTTPS.
type Client struct {
	apiURL string
	token  string
	client *http.Client
}

// NewClient creates a Client. The HTTP timeout leaves room for long polls of
// up to pollTimeout.
func NewClient(apiURL, token string, pollTimeout time.Duration) *Client {
	return NewClientWithHTTP(apiURL, token, &http.Client{Timeout: pollTimeout + 10*time.Second})
}

// NewClientWithHTTP creates a Client with a custom http.Client (for testing).
func NewClientWithHTTP(apiURL, token string, hc *http.Client) *Client {
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &Client{apiURL: strings.TrimRight(apiURL, "/"), token: token, client: hc}
}

// GetUpdates long-polls for updates with IDs at or above offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	q.Set("allowed_updates", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.method("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fault.Wrap(fault.Transport, "getUpdates", err)
	}

	var updates []Update
	if err := c.do(req, &updates); err != nil {
		return nil, fault.Wrap(fault.Transport, "getUpdates", err)
	}
	return updates, nil
}

// SendMessage posts text to chatID. parseMode may be empty for plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ParseMode: parseMode})
	if err != nil {
		return fault.Wrap(fault.Transport, "sendMessage", fmt.Errorf("marshaling message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.method("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fault.Wrap(fault.Transport, "sendMessage", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fault.Wrap(fault.Transport, "sendMessage", err)
	}
	return nil
}

func (c *Client) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, name)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of logs.
		if ue, ok := err.(*url.Error); ok {
			return fmt.Errorf("%s request failed: %w", req.Method, ue.Err)
		}
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var ar apiResponse
	if err := json.Unmarshal(data, &ar); err != nil {
		return fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if !ar.OK {
		return fmt.Errorf("telegram api error: %d - %s", ar.ErrorCode, ar.Description)
	}
	if result != nil {
		if err := json.Unmarshal(ar.Result, result); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	}
	return nil
}
