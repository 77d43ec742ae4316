package channels

import (
	"context"
	"fmt"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/service"

	"github.com/go-resty/resty/v2"
)

// Discord posts to a subscriber's webhook URL.
type Discord struct {
	client *resty.Client
}

// NewDiscord creates a Discord webhook adapter.
func NewDiscord(timeout time.Duration) *Discord {
	return &Discord{client: resty.New().SetTimeout(timeout)}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

func (d *Discord) Channel() models.Channel { return models.ChannelDiscord }

func (d *Discord) Send(ctx context.Context, webhookURL string, msg service.Message) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(discordPayload{
			Username: "FxPulse",
			Embeds: []discordEmbed{{
				Title:       msg.Subject,
				Description: msg.Text,
				Color:       embedColor(msg.Candidate),
				Timestamp:   msg.Candidate.GeneratedAt.UTC().Format(time.RFC3339),
			}},
		}).
		Post(webhookURL)
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("discord send: status %d", resp.StatusCode())
	}
	return nil
}

func embedColor(c models.NotificationCandidate) int {
	if c.Kind == models.KindRiskAlert {
		return 0xE67E22
	}
	if c.Transition != nil {
		switch c.Transition.Current.Signal {
		case models.SignalLong:
			return 0x2ECC71
		case models.SignalShort:
			return 0xE74C3C
		}
	}
	return 0x95A5A6
}
