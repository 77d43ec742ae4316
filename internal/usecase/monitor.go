package usecase

import (
	"context"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/service"
	"FxPulse/internal/service/risk"
	"FxPulse/internal/service/tracker"
	"FxPulse/pkg/logger"
	"FxPulse/pkg/util"

	"github.com/google/uuid"
)

// RetryPolicy bounds gateway retries inside one unit.
type RetryPolicy struct {
	Attempts   int // retries after the first call
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// fetchWithRetry retries transient gateway failures. It stops early when ctx
// is done or stop is closed and returns the last error.
func fetchWithRetry(ctx context.Context, gw service.MarketGateway, pair string, tf models.Timeframe, p RetryPolicy, stop <-chan struct{}, log *logger.Logger) (models.MarketQuote, error) {
	var lastErr error
	for attempt := 0; attempt <= p.Attempts; attempt++ {
		if attempt > 0 {
			wait := util.BackoffWithJitter(p.BackoffMin, p.BackoffMax, attempt-1)
			log.Warn("retrying gateway fetch",
				logger.String("pair", pair),
				logger.String("timeframe", string(tf)),
				logger.Int("attempt", attempt),
				logger.Duration("backoff", wait),
				logger.Error(lastErr))
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return models.MarketQuote{}, lastErr
			case <-stop:
				timer.Stop()
				return models.MarketQuote{}, lastErr
			}
		}
		q, err := gw.Fetch(ctx, pair, tf)
		if err == nil {
			return q, nil
		}
		lastErr = err
		if !models.IsTransient(err) {
			break
		}
	}
	return models.MarketQuote{}, lastErr
}

// SignalMonitor evaluates one (pair, timeframe) unit.
type SignalMonitor struct {
	gateway service.MarketGateway
	tracker *tracker.Tracker
	retry   RetryPolicy
	log     *logger.Logger
	now     func() time.Time
}

// NewSignalMonitor creates a SignalMonitor.
func NewSignalMonitor(gw service.MarketGateway, tr *tracker.Tracker, retry RetryPolicy, log *logger.Logger) *SignalMonitor {
	if log == nil {
		log = logger.Nop()
	}
	return &SignalMonitor{gateway: gw, tracker: tr, retry: retry, log: log, now: time.Now}
}

// Evaluate fetches the latest prediction for key and returns a signal_change
// candidate when the label moved. The candidate has no audience yet.
func (m *SignalMonitor) Evaluate(ctx context.Context, key models.SignalKey, stop <-chan struct{}) (*models.NotificationCandidate, error) {
	q, err := fetchWithRetry(ctx, m.gateway, key.Pair, key.Timeframe, m.retry, stop, m.log)
	if err != nil {
		return nil, err
	}
	tn, changed, err := m.tracker.Observe(ctx, tracker.Observation{
		Key:          key,
		Signal:       q.Prediction.Label,
		Confidence:   q.Prediction.Confidence,
		ModelVersion: q.Prediction.ModelVersion,
		ModelBacked:  q.Prediction.ModelBacked,
	})
	if err != nil || !changed {
		return nil, err
	}
	return &models.NotificationCandidate{
		ID:          uuid.NewString(),
		Kind:        models.KindSignalChange,
		Pair:        key.Pair,
		Timeframe:   key.Timeframe,
		Confidence:  tn.Current.Confidence,
		ModelBacked: tn.Current.ModelBacked,
		Transition:  &tn,
		GeneratedAt: m.now(),
	}, nil
}

// PositionMonitor evaluates one open position.
type PositionMonitor struct {
	gateway   service.MarketGateway
	evaluator *risk.Evaluator
	timeframe models.Timeframe
	retry     RetryPolicy
	log       *logger.Logger
	now       func() time.Time
}

// NewPositionMonitor creates a PositionMonitor. Predictions are read on tf.
func NewPositionMonitor(gw service.MarketGateway, ev *risk.Evaluator, tf models.Timeframe, retry RetryPolicy, log *logger.Logger) *PositionMonitor {
	if !models.IsValidTimeframe(tf) {
		tf = models.DefaultTimeframe()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PositionMonitor{gateway: gw, evaluator: ev, timeframe: tf, retry: retry, log: log, now: time.Now}
}

// Evaluate snapshots pos and returns a risk_alert candidate for its owner when
// the recommendation is anything but hold.
func (m *PositionMonitor) Evaluate(ctx context.Context, pos models.Position, stop <-chan struct{}) (models.PositionSnapshot, *models.NotificationCandidate, error) {
	if err := pos.Validate(); err != nil {
		return models.PositionSnapshot{}, nil, models.NewFailure(models.FailureInvalidInput, "position.evaluate", err)
	}
	q, err := fetchWithRetry(ctx, m.gateway, pos.Pair, m.timeframe, m.retry, stop, m.log)
	if err != nil {
		return models.PositionSnapshot{}, nil, err
	}
	now := m.now()
	snap, err := m.evaluator.Evaluate(pos, q, now)
	if err != nil {
		return models.PositionSnapshot{}, nil, err
	}
	if !snap.NeedsAlert() {
		return snap, nil, nil
	}
	s := snap
	return snap, &models.NotificationCandidate{
		ID:            uuid.NewString(),
		Kind:          models.KindRiskAlert,
		SubscriberIDs: []string{pos.OwnerID},
		Pair:          pos.Pair,
		PositionID:    pos.ID,
		Confidence:    snap.RecommendationConfidence,
		ModelBacked:   snap.ModelBacked,
		Snapshot:      &s,
		GeneratedAt:   now,
	}, nil
}
