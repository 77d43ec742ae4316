package models

import (
	"fmt"
	"time"
)

// Signal is a directional prediction label.
type Signal string

const (
	SignalLong  Signal = "long"
	SignalShort Signal = "short"
	SignalHold  Signal = "hold"
)

// Valid reports whether s is one of the known labels.
func (s Signal) Valid() bool {
	switch s {
	case SignalLong, SignalShort, SignalHold:
		return true
	default:
		return false
	}
}

// ParseSignal converts a raw label into a Signal.
func ParseSignal(s string) (Signal, error) {
	sig := Signal(s)
	if !sig.Valid() {
		return "", fmt.Errorf("unknown signal %q", s)
	}
	return sig, nil
}

// SignalKey identifies one tracked (pair, timeframe) stream.
type SignalKey struct {
	Pair      string    `json:"pair"`
	Timeframe Timeframe `json:"timeframe"`
}

func (k SignalKey) String() string {
	return k.Pair + "@" + string(k.Timeframe)
}

// SignalState is the last known signal for a key.
type SignalState struct {
	Pair         string    `json:"pair"`
	Timeframe    Timeframe `json:"timeframe"`
	Signal       Signal    `json:"signal"`
	Confidence   float64   `json:"confidence"`
	ModelVersion string    `json:"model_version"`
	ModelBacked  bool      `json:"model_backed"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Key returns the state's identity.
func (s SignalState) Key() SignalKey {
	return SignalKey{Pair: s.Pair, Timeframe: s.Timeframe}
}

// Transition is a label change between two consecutive observations of one key.
type Transition struct {
	Key      SignalKey   `json:"key"`
	Previous SignalState `json:"previous"`
	Current  SignalState `json:"current"`
}
