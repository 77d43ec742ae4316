package eligibility

import (
	"time"

	"FxPulse/internal/domain/models"

	"github.com/samber/lo"
)

// capWindow is the rolling window for the per-subscriber daily cap.
const capWindow = 24 * time.Hour

// HistoryWindow is how far back Admit needs history: the cap window or the cooldown, whichever is longer.
func HistoryWindow(p models.SubscriberProfile) time.Duration {
	if c := p.Cooldown(); c > capWindow {
		return c
	}
	return capWindow
}

// Admit decides whether candidate c may be sent to profile p given p's recent records.
// Checks run in a fixed order and the first failing one is reported.
// A non-positive MaxNotificationsPerDay disables the cap.
func Admit(c models.NotificationCandidate, p models.SubscriberProfile, history []models.NotificationRecord, now time.Time) models.Decision {
	if !p.EnablesPair(c.Pair) {
		return models.Suppress(models.ReasonPairDisabled)
	}
	if c.Kind == models.KindSignalChange && !p.EnablesTimeframe(c.Timeframe) {
		return models.Suppress(models.ReasonTimeframeDisabled)
	}
	if c.Confidence < p.MinConfidence {
		return models.Suppress(models.ReasonBelowConfidence)
	}
	if p.MLEnhancedOnly && !c.ModelBacked {
		return models.Suppress(models.ReasonNotMLEnhanced)
	}
	if inCooldown(c, p, history, now) {
		return models.Suppress(models.ReasonCooldown)
	}
	if p.MaxNotificationsPerDay > 0 && SentInWindow(history, now) >= p.MaxNotificationsPerDay {
		return models.Suppress(models.ReasonDailyCap)
	}
	if len(Channels(p)) == 0 {
		return models.Suppress(models.ReasonNoChannels)
	}
	return models.Admit()
}

// Channels returns the subscriber's enabled channels that the service supports, deduplicated.
func Channels(p models.SubscriberProfile) []models.Channel {
	return lo.Uniq(lo.Filter(p.EnabledChannels, func(ch models.Channel, _ int) bool {
		return models.IsValidChannel(ch)
	}))
}

// SentInWindow counts distinct notifications attempted in the rolling 24h window ending at now.
func SentInWindow(history []models.NotificationRecord, now time.Time) int {
	cutoff := now.Add(-capWindow)
	ids := lo.FilterMap(history, func(r models.NotificationRecord, _ int) (string, bool) {
		return r.NotificationID, r.SentAt.After(cutoff) && !r.SentAt.After(now)
	})
	return len(lo.Uniq(ids))
}

func inCooldown(c models.NotificationCandidate, p models.SubscriberProfile, history []models.NotificationRecord, now time.Time) bool {
	cooldown := p.Cooldown()
	if cooldown <= 0 {
		return false
	}
	var last time.Time
	for _, r := range history {
		if c.SameStream(r) && r.SentAt.After(last) {
			last = r.SentAt
		}
	}
	return !last.IsZero() && now.Sub(last) < cooldown
}
