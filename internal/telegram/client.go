// Package telegram speaks the Telegram Bot API: an outbound message client
// and a long-polling update source. No webhook required.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	herrors "github.com/svcdesk/helpdesk-bot/internal/errors"
)

// Client sends messages via the Bot API. It satisfies the session monitor's
// Notifier: for private chats the chat ID equals the user ID.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewClient creates a Bot API client. token is the bot token
// (e.g. "12345:ABCDEF...").
func NewClient(token string, logger zerolog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: "https://api.telegram.org/bot" + token,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With().Str("component", "telegram").Logger(),
	}
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send delivers a plain-text message to the user. Failures are surfaced to
// the caller; whether to retry is the caller's decision.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal sendMessage: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read sendMessage response: %w", err)
	}

	var parsed sendMessageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("unmarshal sendMessage response: %w", err)
	}
	if !parsed.OK {
		code := parsed.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return herrors.NewAPIError("telegram", code, parsed.Description)
	}

	c.logger.Debug().Int64("chat_id", chatID).Msg("message sent")
	return nil
}
