package models

import "time"

// Requests for the operational HTTP endpoints.

type HistoryRequest struct {
	SubscriberID string `query:"subscriber_id" validate:"required"`
	Since        string `query:"since"`
	Limit        int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type AckRequest struct {
	ID             string     `param:"id" validate:"required"`
	SubscriberID   string     `json:"subscriber_id" validate:"required"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
}

type SessionRequest struct {
	Token string `query:"token" validate:"required"`
}
