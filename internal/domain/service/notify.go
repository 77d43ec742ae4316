package service

import (
	"context"

	"FxPulse/internal/domain/models"
)

// Message is a rendered notification ready for a channel.
type Message struct {
	Subject   string
	Text      string
	Candidate models.NotificationCandidate
}

// ChannelAdapter delivers a message to one destination on one channel.
type ChannelAdapter interface {
	Channel() models.Channel
	Send(ctx context.Context, destination string, msg Message) error
}

// Renderer turns a candidate into channel text.
type Renderer interface {
	Render(c models.NotificationCandidate, p models.SubscriberProfile) (Message, error)
}
