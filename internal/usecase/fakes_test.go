package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/service"
	"FxPulse/internal/repository"
	"FxPulse/internal/service/dispatch"
	"FxPulse/internal/service/risk"
	"FxPulse/internal/service/tracker"
)

type reply struct {
	label models.Signal
	conf  float64
	price float64
	err   error
	panic bool
}

type fakeGateway struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   map[string]int
	block   chan struct{}
	started chan string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{replies: map[string][]reply{}, calls: map[string]int{}}
}

func (g *fakeGateway) set(pair string, tf models.Timeframe, rs ...reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[models.SignalKey{Pair: pair, Timeframe: tf}.String()] = rs
}

func (g *fakeGateway) callCount(pair string, tf models.Timeframe) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[models.SignalKey{Pair: pair, Timeframe: tf}.String()]
}

// Fetch pops the next reply for the key; the last reply repeats.
func (g *fakeGateway) Fetch(_ context.Context, pair string, tf models.Timeframe) (models.MarketQuote, error) {
	key := models.SignalKey{Pair: pair, Timeframe: tf}.String()
	if g.started != nil {
		select {
		case g.started <- key:
		default:
		}
	}
	if g.block != nil {
		<-g.block
	}

	g.mu.Lock()
	g.calls[key]++
	rs := g.replies[key]
	var r reply
	switch {
	case len(rs) == 0:
		r = reply{err: models.Failuref(models.FailureUpstream, "fake", "no reply for %s", key)}
	case len(rs) == 1:
		r = rs[0]
	default:
		r = rs[0]
		g.replies[key] = rs[1:]
	}
	g.mu.Unlock()

	if r.panic {
		panic("boom")
	}
	if r.err != nil {
		return models.MarketQuote{}, r.err
	}
	price := r.price
	if price == 0 {
		price = 1.1
	}
	return models.MarketQuote{
		Pair:      pair,
		Timeframe: tf,
		Price:     price,
		Candles: []models.Candle{
			{Close: price * 0.999},
			{Close: price},
		},
		Prediction: models.Prediction{Label: r.label, Confidence: r.conf, ModelVersion: "m1", ModelBacked: true},
	}, nil
}

type fakeSubscribers struct {
	profiles []models.SubscriberProfile
	err      error
}

func (f fakeSubscribers) ListSubscribers(context.Context) ([]models.SubscriberProfile, error) {
	return f.profiles, f.err
}

type fakePositions struct {
	positions []models.Position
	err       error
}

func (f fakePositions) OpenPositions(context.Context) ([]models.Position, error) {
	return f.positions, f.err
}

type sentMessage struct {
	dest string
	msg  service.Message
}

type recordingAdapter struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (a *recordingAdapter) Channel() models.Channel { return models.ChannelInApp }

func (a *recordingAdapter) Send(_ context.Context, dest string, msg service.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, sentMessage{dest: dest, msg: msg})
	return a.err
}

func (a *recordingAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

type captureReports struct {
	mu      sync.Mutex
	reports []models.CycleReport
}

func (c *captureReports) PublishCycleReport(_ context.Context, r models.CycleReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
	return errors.New("broker unavailable")
}

func (c *captureReports) PublishDelivery(context.Context, models.NotificationCandidate, string, []models.DeliveryResult) error {
	return nil
}

func (c *captureReports) Close() error { return nil }

func profile(id string) models.SubscriberProfile {
	return models.SubscriberProfile{
		ID:                id,
		EnabledPairs:      []string{"EUR/USD", "GBP/USD"},
		EnabledTimeframes: []models.Timeframe{models.TF1h},
		MinConfidence:     0.6,
		EnabledChannels:   []models.Channel{models.ChannelInApp},
	}
}

type harness struct {
	gw        *fakeGateway
	adapter   *recordingAdapter
	history   *repository.MemoryNotificationStore
	snapshots *repository.MemorySnapshotStore
	events    *captureReports
	scheduler *Scheduler
}

func newHarness(cfg SchedulerConfig, subs fakeSubscribers, positions fakePositions) *harness {
	h := &harness{
		gw:        newFakeGateway(),
		adapter:   &recordingAdapter{},
		history:   repository.NewMemoryNotificationStore(0),
		snapshots: repository.NewMemorySnapshotStore(0),
		events:    &captureReports{},
	}
	retry := RetryPolicy{Attempts: 2, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}
	signals := NewSignalMonitor(h.gw, tracker.New(repository.NewMemorySignalStateStore()), retry, nil)
	pm := NewPositionMonitor(h.gw, risk.New(), models.TF1h, retry, nil)
	d := dispatch.New(h.history, dispatch.PlainRenderer{}, []service.ChannelAdapter{h.adapter})
	notifier := NewNotifier(h.history, d)
	h.scheduler = NewScheduler(cfg, signals, pm, notifier, subs, positions,
		WithSnapshotStore(h.snapshots),
		WithSchedulerEvents(h.events))
	return h
}
