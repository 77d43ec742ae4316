package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
	"FxPulse/internal/domain/service"
	"FxPulse/internal/service/eligibility"
	"FxPulse/pkg/logger"

	"github.com/google/uuid"
)

// Option configures Dispatcher.
type Option func(*Dispatcher)

// WithChannelTimeout bounds each channel send.
func WithChannelTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		x.timeout = d
	}
}

// WithEvents publishes every dispatch to downstream consumers.
func WithEvents(p repository.EventPublisher) Option {
	return func(x *Dispatcher) {
		x.events = p
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(x *Dispatcher) {
		x.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(x *Dispatcher) {
		x.log = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(x *Dispatcher) {
		x.now = now
	}
}

// Dispatcher fans one admitted candidate out to every enabled channel of a subscriber.
type Dispatcher struct {
	adapters map[models.Channel]service.ChannelAdapter
	renderer service.Renderer
	store    repository.NotificationStore
	events   repository.EventPublisher
	metrics  repository.Metrics
	timeout  time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// New creates a Dispatcher. Adapters are keyed by their Channel.
func New(store repository.NotificationStore, renderer service.Renderer, adapters []service.ChannelAdapter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		adapters: make(map[models.Channel]service.ChannelAdapter, len(adapters)),
		renderer: renderer,
		store:    store,
		timeout:  10 * time.Second,
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, a := range adapters {
		d.adapters[a.Channel()] = a
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends c to every enabled channel of p in parallel and records one
// NotificationRecord per attempt. A failing channel never blocks the others.
// The returned error reports only a failure to persist the records.
func (d *Dispatcher) Dispatch(ctx context.Context, c models.NotificationCandidate, p models.SubscriberProfile) ([]models.DeliveryResult, error) {
	channels := eligibility.Channels(p)
	sentAt := d.now()

	msg, renderErr := d.renderer.Render(c, p)

	results := make([]models.DeliveryResult, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		results[i] = models.DeliveryResult{Channel: ch, RecordID: uuid.NewString()}
		if renderErr != nil {
			results[i].Reason = fmt.Sprintf("render: %v", renderErr)
			continue
		}
		wg.Add(1)
		go func(i int, ch models.Channel) {
			defer wg.Done()
			if err := d.send(ctx, ch, p, msg); err != nil {
				results[i].Reason = err.Error()
				return
			}
			results[i].Success = true
		}(i, ch)
	}
	wg.Wait()

	records := make([]models.NotificationRecord, 0, len(results))
	for _, r := range results {
		records = append(records, models.NotificationRecord{
			ID:             r.RecordID,
			NotificationID: c.ID,
			SubscriberID:   p.ID,
			Kind:           c.Kind,
			Pair:           c.Pair,
			Timeframe:      c.Timeframe,
			PositionID:     c.PositionID,
			Channel:        r.Channel,
			SentAt:         sentAt,
			Success:        r.Success,
			FailureReason:  r.Reason,
			Retain:         eligibility.HistoryWindow(p),
		})
		if d.metrics != nil {
			d.metrics.RecordDelivery(string(r.Channel), r.Success)
		}
		if !r.Success {
			d.log.Warn("delivery failed",
				logger.String("notification_id", c.ID),
				logger.String("subscriber_id", p.ID),
				logger.String("channel", string(r.Channel)),
				logger.String("reason", r.Reason),
			)
		}
	}

	var storeErr error
	if len(records) > 0 {
		if err := d.store.Append(ctx, records...); err != nil {
			storeErr = fmt.Errorf("append records for %s: %w", p.ID, err)
		}
	}

	if d.events != nil {
		if err := d.events.PublishDelivery(ctx, c, p.ID, results); err != nil {
			d.log.Warn("publish delivery event failed", logger.String("notification_id", c.ID), logger.Error(err))
		}
	}
	return results, storeErr
}

func (d *Dispatcher) send(ctx context.Context, ch models.Channel, p models.SubscriberProfile, msg service.Message) (err error) {
	adapter, ok := d.adapters[ch]
	if !ok {
		return fmt.Errorf("channel %s not configured", ch)
	}
	dest := p.Destination(ch)
	if dest == "" {
		return fmt.Errorf("no %s destination for subscriber %s", ch, p.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch, r)
		}
	}()
	return adapter.Send(ctx, dest, msg)
}
