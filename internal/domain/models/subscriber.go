package models

import "time"

// SubscriberProfile holds per-user notification filters. Read-only in this service.
type SubscriberProfile struct {
	ID                     string             `json:"id"`
	EnabledPairs           []string           `json:"enabled_pairs"`
	EnabledTimeframes      []Timeframe        `json:"enabled_timeframes"`
	MinConfidence          float64            `json:"min_confidence"`
	MLEnhancedOnly         bool               `json:"ml_enhanced_only"`
	MaxNotificationsPerDay int                `json:"max_notifications_per_day"`
	CooldownMinutes        int                `json:"cooldown_minutes"`
	EnabledChannels        []Channel          `json:"enabled_channels"`
	Destinations           map[Channel]string `json:"destinations"`
}

// EnablesPair reports whether pair is in the subscriber's enabled set.
func (p SubscriberProfile) EnablesPair(pair string) bool {
	for _, v := range p.EnabledPairs {
		if v == pair {
			return true
		}
	}
	return false
}

// EnablesTimeframe reports whether tf is in the subscriber's enabled set.
func (p SubscriberProfile) EnablesTimeframe(tf Timeframe) bool {
	for _, v := range p.EnabledTimeframes {
		if v == tf {
			return true
		}
	}
	return false
}

// Cooldown returns the minimum spacing between two notifications of one stream.
func (p SubscriberProfile) Cooldown() time.Duration {
	return time.Duration(p.CooldownMinutes) * time.Minute
}

// Destination returns the channel-specific destination id. In-app falls back to the subscriber id.
func (p SubscriberProfile) Destination(ch Channel) string {
	if d, ok := p.Destinations[ch]; ok && d != "" {
		return d
	}
	if ch == ChannelInApp {
		return p.ID
	}
	return ""
}

// SubscriberSession is a live in-app connection of an authenticated subscriber.
type SubscriberSession struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriber_id"`
	RemoteAddr   string    `json:"remote_addr"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastSeen     time.Time `json:"last_seen"`
}
