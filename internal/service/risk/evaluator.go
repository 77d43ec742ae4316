package risk

import (
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/services/features"

	"github.com/shopspring/decimal"
)

// pipScale maps a quote currency to the multiplier turning a price difference into pips.
var pipScale = map[string]int64{
	"JPY": 100,
}

const defaultPipScale = 10000

var hundred = decimal.NewFromInt(100)

// Evaluator derives a PositionSnapshot from a position and the latest quote.
// It holds no state; equal inputs give equal snapshots.
type Evaluator struct {
	reversalThreshold float64
	targetProgress    decimal.Decimal
}

// Option configures Evaluator.
type Option func(*Evaluator)

// WithReversalThreshold sets the reversal probability above which action is recommended.
func WithReversalThreshold(v float64) Option {
	return func(e *Evaluator) {
		e.reversalThreshold = v
	}
}

// WithTargetProgress sets the fraction of the reward distance that counts as near target.
func WithTargetProgress(v float64) Option {
	return func(e *Evaluator) {
		e.targetProgress = decimal.NewFromFloat(v)
	}
}

// New creates an Evaluator with threshold 0.6 and target progress 0.8 unless overridden.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		reversalThreshold: 0.6,
		targetProgress:    decimal.NewFromFloat(0.8),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PipScale returns the pip multiplier for pair.
func PipScale(pair string) int64 {
	if s, ok := pipScale[models.QuoteCurrency(pair)]; ok {
		return s
	}
	return defaultPipScale
}

// ReversalProbability scores the chance that price turns against dir given the prediction.
func ReversalProbability(dir models.Direction, p models.Prediction) float64 {
	switch {
	case p.Label == models.SignalHold:
		return 0.5 * p.Confidence
	case dir.Opposes(p.Label):
		return p.Confidence
	default:
		return (1 - p.Confidence) * 0.5
	}
}

// Evaluate computes the snapshot for pos at quote.Price.
func (e *Evaluator) Evaluate(pos models.Position, quote models.MarketQuote, now time.Time) (models.PositionSnapshot, error) {
	if err := pos.Validate(); err != nil {
		return models.PositionSnapshot{}, models.NewFailure(models.FailureInvalidInput, "risk.evaluate", err)
	}
	if quote.Price <= 0 {
		return models.PositionSnapshot{}, models.Failuref(models.FailureInvalidInput, "risk.evaluate", "non-positive price %v for %s", quote.Price, pos.Pair)
	}

	sign := decimal.NewFromFloat(pos.Direction.Sign())
	entry := decimal.NewFromFloat(pos.EntryPrice)
	stop := decimal.NewFromFloat(pos.StopLoss)
	target := decimal.NewFromFloat(pos.TakeProfit)
	current := decimal.NewFromFloat(quote.Price)
	size := decimal.NewFromFloat(pos.Size)

	move := current.Sub(entry).Mul(sign)
	risk := entry.Sub(stop).Abs()
	reward := target.Sub(entry).Abs()

	snap := models.PositionSnapshot{
		Position:       pos,
		CurrentPrice:   quote.Price,
		PnL:            move.Mul(size).InexactFloat64(),
		PnLPercent:     move.Div(entry).Mul(hundred).InexactFloat64(),
		PnLPips:        move.Mul(decimal.NewFromInt(PipScale(pos.Pair))).Round(1).InexactFloat64(),
		RiskDistance:   risk.InexactFloat64(),
		RewardDistance: reward.InexactFloat64(),
		HoldingMinutes: holdingMinutes(pos.EntryTime, now),
		TrendStrength:  features.TrendStrength(quote.Candles, pos.Direction),
		ModelVersion:   quote.Prediction.ModelVersion,
		ModelBacked:    quote.Prediction.ModelBacked,
		EvaluatedAt:    now,
	}
	if !risk.IsZero() {
		rr := reward.Div(risk).InexactFloat64()
		snap.RiskReward = &rr
	}

	reversal := ReversalProbability(pos.Direction, quote.Prediction)
	snap.ReversalProbability = reversal

	var progress decimal.Decimal
	if !reward.IsZero() {
		progress = move.Div(reward)
	}

	switch {
	case stopCrossed(pos, quote.Price):
		snap.Recommendation = models.RecommendClose
		snap.RecommendationConfidence = 1
	case progress.GreaterThanOrEqual(e.targetProgress) && reversal > e.reversalThreshold:
		snap.Recommendation = models.RecommendTightenStop
		snap.RecommendationConfidence = reversal
	case reversal > e.reversalThreshold && move.IsPositive():
		snap.Recommendation = models.RecommendPartialClose
		snap.RecommendationConfidence = reversal
	default:
		snap.Recommendation = models.RecommendHold
		snap.RecommendationConfidence = 1 - reversal
	}
	return snap, nil
}

func stopCrossed(pos models.Position, price float64) bool {
	if pos.Direction == models.DirectionLong {
		return price <= pos.StopLoss
	}
	return price >= pos.StopLoss
}

func holdingMinutes(entry, now time.Time) int64 {
	if entry.IsZero() || now.Before(entry) {
		return 0
	}
	return int64(now.Sub(entry) / time.Minute)
}
