package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"FxPulse/pkg/queue"
)

// ErrSubscriberOffline makes the queue retry an inbox frame later.
var ErrSubscriberOffline = errors.New("subscriber offline")

// InboxJob replays parked in-app frames once the subscriber has a live session.
type InboxJob struct {
	sessions Sessions
}

// NewInboxJob creates the inbox consumer.
func NewInboxJob(sessions Sessions) *InboxJob {
	return &InboxJob{sessions: sessions}
}

func (j *InboxJob) Name() string { return "in-app-inbox" }

func (j *InboxJob) Type() string { return InboxMessageType }

func (j *InboxJob) Handle(_ context.Context, payload interface{}) error {
	frame, err := queue.ParsePayload[Frame](payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if j.sessions.Deliver(frame.SubscriberID, b) == 0 {
		return ErrSubscriberOffline
	}
	return nil
}
