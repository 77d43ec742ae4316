package models

import "time"

// CandidateKind classifies a notification candidate.
type CandidateKind string

const (
	KindSignalChange CandidateKind = "signal_change"
	KindRiskAlert    CandidateKind = "risk_alert"
)

// Channel is a delivery channel.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelDiscord  Channel = "discord"
	ChannelEmail    Channel = "email"
	ChannelInApp    Channel = "in_app"
)

// AllChannels lists every supported channel in dispatch order.
var AllChannels = []Channel{ChannelTelegram, ChannelDiscord, ChannelEmail, ChannelInApp}

// IsValidChannel reports whether c is a supported channel.
func IsValidChannel(c Channel) bool {
	for _, ch := range AllChannels {
		if ch == c {
			return true
		}
	}
	return false
}

// NotificationCandidate is produced by the tracker/evaluator stage and consumed by the filter.
// Exactly one of Transition and Snapshot is set, matching Kind.
type NotificationCandidate struct {
	ID            string            `json:"id"`
	Kind          CandidateKind     `json:"kind"`
	SubscriberIDs []string          `json:"subscriber_ids"`
	Pair          string            `json:"pair"`
	Timeframe     Timeframe         `json:"timeframe,omitempty"`
	PositionID    string            `json:"position_id,omitempty"`
	Confidence    float64           `json:"confidence"`
	ModelBacked   bool              `json:"model_backed"`
	Transition    *Transition       `json:"transition,omitempty"`
	Snapshot      *PositionSnapshot `json:"snapshot,omitempty"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// SameStream reports whether r was produced for the same (pair, timeframe) or position as c.
func (c NotificationCandidate) SameStream(r NotificationRecord) bool {
	if r.Pair != c.Pair {
		return false
	}
	if c.Kind == KindRiskAlert {
		return r.Kind == KindRiskAlert && r.PositionID == c.PositionID
	}
	return r.Kind == KindSignalChange && r.Timeframe == c.Timeframe
}

// NotificationRecord is the persisted outcome of one channel attempt.
type NotificationRecord struct {
	ID             string        `json:"id"`
	NotificationID string        `json:"notification_id"`
	SubscriberID   string        `json:"subscriber_id"`
	Kind           CandidateKind `json:"kind"`
	Pair           string        `json:"pair"`
	Timeframe      Timeframe     `json:"timeframe,omitempty"`
	PositionID     string        `json:"position_id,omitempty"`
	Channel        Channel       `json:"channel"`
	SentAt         time.Time     `json:"sent_at"`
	Success        bool          `json:"success"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at"`
	Retain         time.Duration `json:"-"` // least time history stores keep it
}

// DeliveryResult is the outcome of one channel delivery.
type DeliveryResult struct {
	Channel  Channel `json:"channel"`
	Success  bool    `json:"success"`
	Reason   string  `json:"reason,omitempty"`
	RecordID string  `json:"record_id"`
}

// SuppressReason explains why a candidate was not sent to a subscriber.
type SuppressReason string

const (
	ReasonPairDisabled      SuppressReason = "pair_disabled"
	ReasonTimeframeDisabled SuppressReason = "timeframe_disabled"
	ReasonBelowConfidence   SuppressReason = "below_confidence"
	ReasonNotMLEnhanced     SuppressReason = "not_ml_enhanced"
	ReasonCooldown          SuppressReason = "cooldown"
	ReasonDailyCap          SuppressReason = "daily_cap"
	ReasonNoChannels        SuppressReason = "no_channels"
	// ReasonHistoryUnavailable is set by the notifier, never by the filter.
	ReasonHistoryUnavailable SuppressReason = "history_unavailable"
)

// Decision is the filter outcome. Suppression is an expected result, not an error.
type Decision struct {
	Admitted bool           `json:"admitted"`
	Reason   SuppressReason `json:"reason,omitempty"`
}

// Admit returns an admitting decision.
func Admit() Decision { return Decision{Admitted: true} }

// Suppress returns a suppressing decision with reason.
func Suppress(reason SuppressReason) Decision { return Decision{Reason: reason} }
