package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/service"
)

// InboxMessageType is the queue message type for stored in-app notifications.
const InboxMessageType = "inbox.notification"

// Frame is the JSON payload pushed to in-app sessions and stored in the inbox.
type Frame struct {
	Type           string               `json:"type"`
	SubscriberID   string               `json:"subscriber_id"`
	NotificationID string               `json:"notification_id"`
	Kind           models.CandidateKind `json:"kind"`
	Pair           string               `json:"pair"`
	Timeframe      models.Timeframe     `json:"timeframe,omitempty"`
	PositionID     string               `json:"position_id,omitempty"`
	Subject        string               `json:"subject"`
	Text           string               `json:"text"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// Sessions pushes frames to live sessions of a subscriber.
type Sessions interface {
	Deliver(subscriberID string, frame []byte) int
}

// Inbox stores frames for later retrieval.
type Inbox interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// InApp delivers to live websocket sessions, parking frames in the inbox
// queue for offline subscribers. The destination is the subscriber id.
type InApp struct {
	sessions Sessions
	inbox    Inbox
}

// NewInApp creates the in-app adapter. Either dependency may be nil.
func NewInApp(sessions Sessions, inbox Inbox) *InApp {
	return &InApp{sessions: sessions, inbox: inbox}
}

func (a *InApp) Channel() models.Channel { return models.ChannelInApp }

// Send pushes to live sessions and falls back to the inbox when the subscriber
// has none. It fails only when neither path accepted the frame.
func (a *InApp) Send(ctx context.Context, subscriberID string, msg service.Message) error {
	frame := NewFrame(subscriberID, msg)

	if a.sessions != nil {
		b, err := json.Marshal(frame)
		if err != nil {
			return fmt.Errorf("in_app encode: %w", err)
		}
		if a.sessions.Deliver(subscriberID, b) > 0 {
			return nil
		}
	}

	if a.inbox == nil {
		return errors.New("in_app: no live session and no inbox")
	}
	if err := a.inbox.Enqueue(ctx, InboxMessageType, frame); err != nil {
		return fmt.Errorf("in_app: no live session and inbox unavailable: %w", err)
	}
	return nil
}

// NewFrame builds the frame for one rendered message.
func NewFrame(subscriberID string, msg service.Message) Frame {
	c := msg.Candidate
	return Frame{
		Type:           "notification",
		SubscriberID:   subscriberID,
		NotificationID: c.ID,
		Kind:           c.Kind,
		Pair:           c.Pair,
		Timeframe:      c.Timeframe,
		PositionID:     c.PositionID,
		Subject:        msg.Subject,
		Text:           msg.Text,
		GeneratedAt:    c.GeneratedAt,
	}
}
