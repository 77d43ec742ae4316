package gateway

import (
	"context"
	"errors"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
	"FxPulse/internal/domain/service"
	"FxPulse/internal/service/ratelimit"
	"FxPulse/internal/services/features"
	"FxPulse/pkg/cache"
	"FxPulse/pkg/logger"
)

const (
	limiterMarket     = "market"
	limiterPrediction = "prediction"
)

// Option configures Gateway.
type Option func(*Gateway)

// Gateway combines market data and model predictions behind one call with
// validation, a per-call timeout, a short-lived cache and a client-side rate limit.
type Gateway struct {
	market   service.MarketDataSource
	model    service.PredictionModel
	cache    cache.Service
	cacheTTL time.Duration
	timeout  time.Duration
	candles  int
	limiter  *ratelimit.Limiter
	capacity float64
	refill   float64
	fallback bool
	metrics  repository.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// WithCache enables the quote cache.
func WithCache(c cache.Service, ttl time.Duration) Option {
	return func(g *Gateway) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

// WithTimeout bounds each Fetch.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

// WithCandles sets how many candles to request.
func WithCandles(n int) Option {
	return func(g *Gateway) {
		g.candles = n
	}
}

// WithRateLimit applies a token bucket to each upstream.
func WithRateLimit(l *ratelimit.Limiter, capacity, refillPerSec float64) Option {
	return func(g *Gateway) {
		g.limiter = l
		g.capacity = capacity
		g.refill = refillPerSec
	}
}

// WithFallback enables the momentum heuristic when the model service is transiently unavailable.
func WithFallback(enabled bool) Option {
	return func(g *Gateway) {
		g.fallback = enabled
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(g *Gateway) {
		g.log = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// New creates a Gateway.
func New(market service.MarketDataSource, model service.PredictionModel, opts ...Option) *Gateway {
	g := &Gateway{
		market:  market,
		model:   model,
		timeout: 5 * time.Second,
		candles: 50,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Fetch implements service.MarketGateway. Failures are *models.Failure; no retries happen here.
func (g *Gateway) Fetch(ctx context.Context, pair string, tf models.Timeframe) (models.MarketQuote, error) {
	start := time.Now()
	q, err := g.fetch(ctx, pair, tf)
	if g.metrics != nil {
		result := "ok"
		if err != nil {
			result = string(models.KindOf(err))
		}
		g.metrics.RecordGateway(result, time.Since(start).Seconds())
	}
	return q, err
}

func (g *Gateway) fetch(ctx context.Context, pair string, tf models.Timeframe) (models.MarketQuote, error) {
	if !models.IsValidPair(pair) {
		return models.MarketQuote{}, models.Failuref(models.FailureInvalidInput, "gateway.fetch", "invalid pair %q", pair)
	}
	if !models.IsValidTimeframe(tf) {
		return models.MarketQuote{}, models.Failuref(models.FailureInvalidInput, "gateway.fetch", "invalid timeframe %q", tf)
	}

	key := cache.GenerateKey("quote", pair, tf)
	if g.cache != nil {
		var cached models.MarketQuote
		if err := g.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			g.log.Warn("quote cache read failed", logger.String("key", key), logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if !g.allow(limiterMarket) {
		return models.MarketQuote{}, models.Failuref(models.FailureRateLimited, "gateway.market", "local quota exhausted")
	}
	price, candles, err := g.market.Quote(ctx, pair, tf, g.candles)
	if err != nil {
		return models.MarketQuote{}, classify("gateway.market", err)
	}

	pred, err := g.predict(ctx, pair, tf, candles)
	if err != nil {
		return models.MarketQuote{}, err
	}

	q := models.MarketQuote{
		Pair:       pair,
		Timeframe:  tf,
		Price:      price,
		Candles:    candles,
		Prediction: pred,
		FetchedAt:  g.now(),
	}
	if g.cache != nil && g.cacheTTL > 0 {
		if err := g.cache.Set(ctx, key, q, g.cacheTTL); err != nil {
			g.log.Warn("quote cache write failed", logger.String("key", key), logger.Error(err))
		}
	}
	return q, nil
}

func (g *Gateway) predict(ctx context.Context, pair string, tf models.Timeframe, candles []models.Candle) (models.Prediction, error) {
	var err error
	if g.allow(limiterPrediction) {
		var p models.Prediction
		p, err = g.model.Predict(ctx, pair, tf, candles)
		if err == nil {
			return p, nil
		}
		err = classify("gateway.prediction", err)
	} else {
		err = models.Failuref(models.FailureRateLimited, "gateway.prediction", "local quota exhausted")
	}

	if !g.fallback || !models.IsTransient(err) || len(candles) < 2 {
		return models.Prediction{}, err
	}
	g.log.Warn("prediction unavailable, using momentum heuristic",
		logger.String("pair", pair),
		logger.String("timeframe", string(tf)),
		logger.Error(err),
	)
	return features.MomentumPrediction(candles), nil
}

func (g *Gateway) allow(upstream string) bool {
	if g.limiter == nil {
		return true
	}
	return g.limiter.Allow(upstream, g.capacity, g.refill)
}
