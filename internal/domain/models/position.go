package models

import (
	"fmt"
	"time"
)

// Direction is the side of an open position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// Opposes reports whether a signal points against the direction.
func (d Direction) Opposes(s Signal) bool {
	return (d == DirectionLong && s == SignalShort) || (d == DirectionShort && s == SignalLong)
}

// Position is an open trade owned by the trade-management service.
type Position struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Pair       string    `json:"pair"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Size       float64   `json:"size"`
	EntryTime  time.Time `json:"entry_time"`
}

// Validate checks that stop-loss and take-profit sit on the correct side of entry.
func (p Position) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("position id is required")
	}
	if !IsValidPair(p.Pair) {
		return fmt.Errorf("position %s: invalid pair %q", p.ID, p.Pair)
	}
	if p.EntryPrice <= 0 {
		return fmt.Errorf("position %s: entry price must be positive", p.ID)
	}
	switch p.Direction {
	case DirectionLong:
		if p.StopLoss >= p.EntryPrice {
			return fmt.Errorf("position %s: long stop-loss %.5f not below entry %.5f", p.ID, p.StopLoss, p.EntryPrice)
		}
		if p.TakeProfit <= p.EntryPrice {
			return fmt.Errorf("position %s: long take-profit %.5f not above entry %.5f", p.ID, p.TakeProfit, p.EntryPrice)
		}
	case DirectionShort:
		if p.StopLoss <= p.EntryPrice {
			return fmt.Errorf("position %s: short stop-loss %.5f not above entry %.5f", p.ID, p.StopLoss, p.EntryPrice)
		}
		if p.TakeProfit >= p.EntryPrice {
			return fmt.Errorf("position %s: short take-profit %.5f not below entry %.5f", p.ID, p.TakeProfit, p.EntryPrice)
		}
	default:
		return fmt.Errorf("position %s: unknown direction %q", p.ID, p.Direction)
	}
	return nil
}

// Recommendation is the evaluator's suggested action.
type Recommendation string

const (
	RecommendHold         Recommendation = "hold"
	RecommendClose        Recommendation = "close"
	RecommendPartialClose Recommendation = "partial_close"
	RecommendTightenStop  Recommendation = "tighten_stop"
)

// PositionSnapshot is one evaluation of a position. History rows are append-only.
type PositionSnapshot struct {
	Position

	CurrentPrice             float64        `json:"current_price"`
	PnL                      float64        `json:"pnl"`
	PnLPercent               float64        `json:"pnl_percent"`
	PnLPips                  float64        `json:"pnl_pips"`
	RiskDistance             float64        `json:"risk_distance"`
	RewardDistance           float64        `json:"reward_distance"`
	RiskReward               *float64       `json:"risk_reward"`
	HoldingMinutes           int64          `json:"holding_minutes"`
	TrendStrength            float64        `json:"trend_strength"`
	ReversalProbability      float64        `json:"reversal_probability"`
	Recommendation           Recommendation `json:"recommendation"`
	RecommendationConfidence float64        `json:"recommendation_confidence"`
	ModelVersion             string         `json:"model_version"`
	ModelBacked              bool           `json:"model_backed"`
	EvaluatedAt              time.Time      `json:"evaluated_at"`
}

// NeedsAlert reports whether the snapshot should produce a risk alert.
func (s PositionSnapshot) NeedsAlert() bool {
	return s.Recommendation != "" && s.Recommendation != RecommendHold
}
