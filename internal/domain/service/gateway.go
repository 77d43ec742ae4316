package service

import (
	"context"

	"FxPulse/internal/domain/models"
)

// MarketGateway fetches a normalized quote and prediction for a (pair, timeframe).
// Errors are *models.Failure values.
type MarketGateway interface {
	Fetch(ctx context.Context, pair string, tf models.Timeframe) (models.MarketQuote, error)
}

// MarketDataSource returns the current price and recent candles.
type MarketDataSource interface {
	Quote(ctx context.Context, pair string, tf models.Timeframe, candles int) (float64, []models.Candle, error)
}

// PredictionModel scores a (pair, timeframe). It is a black box to this service.
type PredictionModel interface {
	Predict(ctx context.Context, pair string, tf models.Timeframe, candles []models.Candle) (models.Prediction, error)
}
