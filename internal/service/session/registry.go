package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
	"FxPulse/pkg/logger"
)

// RegistryOption configures Registry.
type RegistryOption func(*Registry)

// WithIdleTimeout sets how long a silent session survives before the reaper closes it.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.idle = d
	}
}

// WithMetrics reports the live session count.
func WithMetrics(m repository.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry owns every live subscriber session.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Session
	bySub map[string]map[string]*Session

	idle    time.Duration
	metrics repository.Metrics
	log     *logger.Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byID:  make(map[string]*Session),
		bySub: make(map[string]map[string]*Session),
		idle:  2 * time.Minute,
		log:   logger.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry clock.
func (r *Registry) Now() time.Time { return r.now() }

// Add registers s.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.byID[s.ID()] = s
	subs, ok := r.bySub[s.SubscriberID()]
	if !ok {
		subs = make(map[string]*Session)
		r.bySub[s.SubscriberID()] = subs
	}
	subs[s.ID()] = s
	n := len(r.byID)
	r.mu.Unlock()

	r.report(n)
	r.log.Info("session opened",
		logger.String("session_id", s.ID()),
		logger.String("subscriber_id", s.SubscriberID()))
}

// Remove unregisters and closes the session with id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		if subs := r.bySub[s.SubscriberID()]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(r.bySub, s.SubscriberID())
			}
		}
	}
	n := len(r.byID)
	r.mu.Unlock()

	if !ok {
		return
	}
	_ = s.Close()
	r.report(n)
	r.log.Info("session closed",
		logger.String("session_id", id),
		logger.String("subscriber_id", s.SubscriberID()))
}

// Touch marks the session as seen now.
func (r *Registry) Touch(id string) {
	r.mu.RLock()
	s, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		s.touch(r.now())
	}
}

// BySubscriber returns the live sessions of one subscriber.
func (r *Registry) BySubscriber(subscriberID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.bySub[subscriberID]
	out := make([]*Session, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out
}

// Deliver enqueues frame on every live session of the subscriber and returns
// how many sessions accepted it.
func (r *Registry) Deliver(subscriberID string, frame []byte) int {
	n := 0
	for _, s := range r.BySubscriber(subscriberID) {
		if s.Enqueue(frame) {
			n++
		}
	}
	return n
}

// Sessions lists every live session ordered by connect time.
func (r *Registry) Sessions() []models.SubscriberSession {
	r.mu.RLock()
	out := make([]models.SubscriberSession, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Len returns the live session count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Reap closes every session silent for longer than the idle timeout and returns their ids.
func (r *Registry) Reap() []string {
	cutoff := r.now().Add(-r.idle)
	var stale []string
	r.mu.RLock()
	for id, s := range r.byID {
		if s.lastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()
	for _, id := range stale {
		r.Remove(id)
	}
	return stale
}

// Run reaps idle sessions until ctx is done, then closes every remaining session.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idle / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			if ids := r.Reap(); len(ids) > 0 {
				r.log.Info("reaped idle sessions", logger.Int("count", len(ids)))
			}
		}
	}
}

// CloseAll closes and removes every session.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		r.Remove(id)
	}
}

func (r *Registry) report(n int) {
	if r.metrics != nil {
		r.metrics.SetSessions(n)
	}
}
