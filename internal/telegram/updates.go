package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Inbound is one user interaction: either a text message or a callback
// button press.
type Inbound struct {
	UserID   int64
	ChatID   int64
	Username string
	Text     string
	Callback string
}

// Poller long-polls getUpdates and emits Inbound events. The update offset
// acts as the implicit ack.
type Poller struct {
	token   string
	baseURL string
	offset  int
	timeout int // long-poll timeout in seconds
	client  *http.Client
	logger  zerolog.Logger
}

// NewPoller creates a Telegram polling source.
func NewPoller(token string, pollTimeout int, logger zerolog.Logger) *Poller {
	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	return &Poller{
		token:   token,
		baseURL: "https://api.telegram.org/bot" + token,
		timeout: pollTimeout,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With().Str("component", "telegram.poller").Logger(),
	}
}

// Run polls until the context is cancelled, sending each interaction to out.
func (p *Poller) Run(ctx context.Context, out chan<- Inbound) {
	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := p.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error().Err(err).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		for _, upd := range updates {
			if ev, ok := p.toInbound(upd); ok {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			if upd.UpdateID >= p.offset {
				p.offset = upd.UpdateID + 1
			}
		}
	}
}

func (p *Poller) toInbound(upd tgUpdate) (Inbound, bool) {
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		return Inbound{
			UserID:   upd.Message.From.ID,
			ChatID:   upd.Message.Chat.ID,
			Username: upd.Message.From.Username,
			Text:     upd.Message.Text,
		}, true
	case upd.CallbackQuery != nil:
		ev := Inbound{
			UserID:   upd.CallbackQuery.From.ID,
			ChatID:   upd.CallbackQuery.From.ID,
			Username: upd.CallbackQuery.From.Username,
			Callback: upd.CallbackQuery.Data,
		}
		if upd.CallbackQuery.Message != nil {
			ev.ChatID = upd.CallbackQuery.Message.Chat.ID
		}
		return ev, true
	}
	return Inbound{}, false
}

// ---- Telegram API wire types ----

type tgGetUpdatesResponse struct {
	OK     bool       `json:"ok"`
	Result []tgUpdate `json:"result"`
}

type tgUpdate struct {
	UpdateID      int              `json:"update_id"`
	Message       *tgMessage       `json:"message,omitempty"`
	CallbackQuery *tgCallbackQuery `json:"callback_query,omitempty"`
}

type tgMessage struct {
	MessageID int     `json:"message_id"`
	From      *tgUser `json:"from,omitempty"`
	Chat      tgChat  `json:"chat"`
	Text      string  `json:"text"`
}

type tgCallbackQuery struct {
	ID      string     `json:"id"`
	From    tgUser     `json:"from"`
	Message *tgMessage `json:"message,omitempty"`
	Data    string     `json:"data"`
}

type tgUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

func (p *Poller) getUpdates(ctx context.Context) ([]tgUpdate, error) {
	params := url.Values{
		"offset":          []string{strconv.Itoa(p.offset)},
		"timeout":         []string{strconv.Itoa(p.timeout)},
		"allowed_updates": []string{`["message","callback_query"]`},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result tgGetUpdatesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram api returned ok=false")
	}
	return result.Result, nil
}
