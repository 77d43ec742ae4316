package dispatch

import (
	"fmt"
	"strings"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/service"
)

// PlainRenderer renders candidates as short plain-text messages.
type PlainRenderer struct{}

// Render implements service.Renderer.
func (PlainRenderer) Render(c models.NotificationCandidate, _ models.SubscriberProfile) (service.Message, error) {
	switch c.Kind {
	case models.KindSignalChange:
		if c.Transition == nil {
			return service.Message{}, fmt.Errorf("signal candidate %s has no transition", c.ID)
		}
		tn := c.Transition
		subject := fmt.Sprintf("%s %s: %s", c.Pair, c.Timeframe, strings.ToUpper(string(tn.Current.Signal)))
		text := fmt.Sprintf("%s on %s changed from %s to %s (confidence %.0f%%, model %s)",
			c.Pair, c.Timeframe, tn.Previous.Signal, tn.Current.Signal, c.Confidence*100, modelTag(tn.Current.ModelVersion, c.ModelBacked))
		return service.Message{Subject: subject, Text: text, Candidate: c}, nil
	case models.KindRiskAlert:
		if c.Snapshot == nil {
			return service.Message{}, fmt.Errorf("risk candidate %s has no snapshot", c.ID)
		}
		s := c.Snapshot
		subject := fmt.Sprintf("%s %s position: %s", c.Pair, s.Direction, strings.ReplaceAll(string(s.Recommendation), "_", " "))
		text := fmt.Sprintf("Position %s %s %s @ %.5f, now %.5f (%+.1f pips, %+.2f%%). Reversal risk %.0f%%. Suggested: %s (%.0f%%).",
			s.ID, s.Direction, c.Pair, s.EntryPrice, s.CurrentPrice, s.PnLPips, s.PnLPercent,
			s.ReversalProbability*100, s.Recommendation, s.RecommendationConfidence*100)
		return service.Message{Subject: subject, Text: text, Candidate: c}, nil
	default:
		return service.Message{}, fmt.Errorf("unknown candidate kind %q", c.Kind)
	}
}

func modelTag(version string, backed bool) string {
	if !backed {
		return version + ", heuristic"
	}
	return version
}
