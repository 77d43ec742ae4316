package models

import "time"

// Candle represents an OHLCV record.
type Candle struct {
	Bucket time.Time `json:"bucket"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Prediction is the scoring result for a (pair, timeframe).
// ModelBacked is false when the label came from the fallback heuristic.
type Prediction struct {
	Label        Signal  `json:"label"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version"`
	ModelBacked  bool    `json:"model_backed"`
}

// MarketQuote is the normalized gateway result.
type MarketQuote struct {
	Pair       string     `json:"pair"`
	Timeframe  Timeframe  `json:"timeframe"`
	Price      float64    `json:"price"`
	Candles    []Candle   `json:"candles"`
	Prediction Prediction `json:"prediction"`
	FetchedAt  time.Time  `json:"fetched_at"`
}
