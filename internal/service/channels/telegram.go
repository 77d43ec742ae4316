package channels

import (
	"context"
	"fmt"
	"strings"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/service"
	xhttp "FxPulse/pkg/http"
)

// Telegram sends messages through the Bot API. The destination is a chat id.
type Telegram struct {
	client *xhttp.Client
	apiURL string
	token  string
}

// NewTelegram creates a Telegram adapter. apiURL defaults to the public Bot API.
func NewTelegram(client *xhttp.Client, apiURL, token string) *Telegram {
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	if client == nil {
		client = xhttp.NewClient()
	}
	return &Telegram{client: client, apiURL: strings.TrimRight(apiURL, "/"), token: token}
}

type telegramRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Channel() models.Channel { return models.ChannelTelegram }

func (t *Telegram) Send(ctx context.Context, chatID string, msg service.Message) error {
	var resp telegramResponse
	err := t.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token),
		Body:   telegramRequest{ChatID: chatID, Text: msg.Subject + "\n" + msg.Text},
	}, &resp)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram send: %s", resp.Description)
	}
	return nil
}
