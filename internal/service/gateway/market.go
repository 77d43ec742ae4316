package gateway

import (
	"context"
	"strconv"
	"time"

	"FxPulse/internal/domain/models"
	xhttp "FxPulse/pkg/http"
)

type candleDTO struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

type quoteResponse struct {
	Pair      string      `json:"pair"`
	Timeframe string      `json:"timeframe"`
	Price     float64     `json:"price"`
	Candles   []candleDTO `json:"candles"`
}

// MarketClient reads prices and candles from the market data service.
type MarketClient struct {
	baseURL string
	client  *xhttp.Client
}

// NewMarketClient creates a market data client.
func NewMarketClient(baseURL string, client *xhttp.Client) *MarketClient {
	return &MarketClient{baseURL: baseURL, client: client}
}

// Quote implements service.MarketDataSource.
func (m *MarketClient) Quote(ctx context.Context, pair string, tf models.Timeframe, candles int) (float64, []models.Candle, error) {
	var resp quoteResponse
	err := m.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    m.baseURL + "/quotes",
		QueryParams: map[string][]string{
			"pair":      {pair},
			"timeframe": {string(tf)},
			"candles":   {strconv.Itoa(candles)},
		},
	}, &resp)
	if err != nil {
		return 0, nil, classify("market.quote", err)
	}
	if resp.Price <= 0 {
		return 0, nil, models.Failuref(models.FailureUpstream, "market.quote", "non-positive price %v for %s", resp.Price, pair)
	}

	out := make([]models.Candle, 0, len(resp.Candles))
	for _, c := range resp.Candles {
		out = append(out, models.Candle{
			Bucket: c.Time,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return resp.Price, out, nil
}
