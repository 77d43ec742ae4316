package features

import (
	"math"

	"FxPulse/internal/domain/models"
)

// HeuristicModelVersion tags predictions produced without the model service.
const HeuristicModelVersion = "heuristic-v1"

// momentumThreshold is the efficiency ratio beyond which the heuristic calls a direction.
const momentumThreshold = 0.2

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// EfficiencyRatio is the net log move over the summed absolute log moves, in [-1,1].
// +1 means every bar closed higher, 0 means no net progress.
func EfficiencyRatio(logReturns []float64) float64 {
	var net, path float64
	for _, r := range logReturns {
		net += r
		path += math.Abs(r)
	}
	if path == 0 {
		return 0
	}
	return clip(net/path, -1, 1)
}

// TrendStrength is the efficiency ratio of the candles signed by direction:
// positive when price trends in the position's favour.
func TrendStrength(candles []models.Candle, dir models.Direction) float64 {
	return clip(dir.Sign()*EfficiencyRatio(ComputeLogReturns(candles)), -1, 1)
}

// MomentumPrediction derives a label from candle momentum when the model service is unavailable.
func MomentumPrediction(candles []models.Candle) models.Prediction {
	er := EfficiencyRatio(ComputeLogReturns(candles))
	p := models.Prediction{
		Label:        models.SignalHold,
		Confidence:   0.5,
		ModelVersion: HeuristicModelVersion,
		ModelBacked:  false,
	}
	switch {
	case er >= momentumThreshold:
		p.Label = models.SignalLong
		p.Confidence = er
	case er <= -momentumThreshold:
		p.Label = models.SignalShort
		p.Confidence = -er
	}
	return p
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
