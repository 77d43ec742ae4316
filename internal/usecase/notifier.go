package usecase

import (
	"context"
	"sync"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
	"FxPulse/internal/service/eligibility"
	"FxPulse/pkg/keylock"
	"FxPulse/pkg/logger"
)

// Dispatcher delivers an admitted candidate to a subscriber.
type Dispatcher interface {
	Dispatch(ctx context.Context, c models.NotificationCandidate, p models.SubscriberProfile) ([]models.DeliveryResult, error)
}

// NotifyOutcome summarizes one candidate across its audience.
type NotifyOutcome struct {
	Admitted   int
	Suppressed int
	Delivered  int
	Failed     int
}

// NotifierOption configures Notifier.
type NotifierOption func(*Notifier)

// WithNotifierFanout bounds how many subscribers of one candidate are handled at once.
func WithNotifierFanout(n int) NotifierOption {
	return func(x *Notifier) {
		if n > 0 {
			x.fanout = n
		}
	}
}

// WithNotifierMetrics sets the metrics recorder.
func WithNotifierMetrics(m repository.Metrics) NotifierOption {
	return func(x *Notifier) {
		x.metrics = m
	}
}

// WithNotifierLogger sets the logger.
func WithNotifierLogger(l *logger.Logger) NotifierOption {
	return func(x *Notifier) {
		x.log = l
	}
}

// WithNotifierClock overrides the time source.
func WithNotifierClock(now func() time.Time) NotifierOption {
	return func(x *Notifier) {
		x.now = now
	}
}

// Notifier runs history read, admission and dispatch for each subscriber of a
// candidate. Work for one subscriber is serialized across all callers.
type Notifier struct {
	history    repository.NotificationStore
	dispatcher Dispatcher
	locks      *keylock.Locker
	fanout     int
	metrics    repository.Metrics
	log        *logger.Logger
	now        func() time.Time
}

// NewNotifier creates a Notifier.
func NewNotifier(history repository.NotificationStore, d Dispatcher, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		history:    history,
		dispatcher: d,
		locks:      keylock.New(),
		fanout:     4,
		log:        logger.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify handles c for every subscriber in c.SubscriberIDs found in profiles.
// Unknown subscriber ids are skipped.
func (n *Notifier) Notify(ctx context.Context, c models.NotificationCandidate, profiles map[string]models.SubscriberProfile) NotifyOutcome {
	var (
		mu  sync.Mutex
		out NotifyOutcome
		wg  sync.WaitGroup
	)
	sem := make(chan struct{}, n.fanout)
	for _, id := range c.SubscriberIDs {
		p, ok := profiles[id]
		if !ok {
			n.log.Debug("candidate subscriber not found", logger.String("subscriber_id", id), logger.String("candidate_id", c.ID))
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(p models.SubscriberProfile) {
			defer wg.Done()
			defer func() { <-sem }()
			d, results := n.NotifySubscriber(ctx, c, p)
			mu.Lock()
			defer mu.Unlock()
			if !d.Admitted {
				out.Suppressed++
				return
			}
			out.Admitted++
			for _, r := range results {
				if r.Success {
					out.Delivered++
				} else {
					out.Failed++
				}
			}
		}(p)
	}
	wg.Wait()
	return out
}

// NotifySubscriber admits and dispatches c for one subscriber.
func (n *Notifier) NotifySubscriber(ctx context.Context, c models.NotificationCandidate, p models.SubscriberProfile) (models.Decision, []models.DeliveryResult) {
	unlock := n.locks.Lock(p.ID)
	defer unlock()

	now := n.now()
	history, err := n.history.Recent(ctx, p.ID, now.Add(-eligibility.HistoryWindow(p)))
	if err != nil {
		// Without history the cooldown and cap cannot be proven, so nothing is sent.
		n.log.Error("read notification history failed",
			logger.String("subscriber_id", p.ID),
			logger.String("candidate_id", c.ID),
			logger.Error(err))
		n.recordError("history")
		return models.Suppress(models.ReasonHistoryUnavailable), nil
	}

	d := eligibility.Admit(c, p, history, now)
	if !d.Admitted {
		if n.metrics != nil {
			n.metrics.RecordSuppressed(string(d.Reason))
		}
		n.log.Debug("candidate suppressed",
			logger.String("subscriber_id", p.ID),
			logger.String("candidate_id", c.ID),
			logger.String("reason", string(d.Reason)))
		return d, nil
	}

	results, err := n.dispatcher.Dispatch(ctx, c, p)
	if err != nil {
		n.log.Error("persist notification records failed",
			logger.String("subscriber_id", p.ID),
			logger.String("candidate_id", c.ID),
			logger.Error(err))
		n.recordError("history")
	}
	return d, results
}

func (n *Notifier) recordError(kind string) {
	if n.metrics != nil {
		n.metrics.RecordError(kind)
	}
}
