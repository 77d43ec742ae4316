package gateway

import (
	"context"
	"fmt"

	"FxPulse/internal/domain/models"
	xhttp "FxPulse/pkg/http"
)

type predictRequest struct {
	Pair      string      `json:"pair"`
	Timeframe string      `json:"timeframe"`
	Candles   []candleDTO `json:"candles"`
}

type predictResponse struct {
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version"`
}

// PredictionClient scores a (pair, timeframe) through the model service.
type PredictionClient struct {
	baseURL string
	client  *xhttp.Client
}

// NewPredictionClient creates a model service client.
func NewPredictionClient(baseURL string, client *xhttp.Client) *PredictionClient {
	return &PredictionClient{baseURL: baseURL, client: client}
}

// Predict implements service.PredictionModel.
func (p *PredictionClient) Predict(ctx context.Context, pair string, tf models.Timeframe, candles []models.Candle) (models.Prediction, error) {
	body := predictRequest{Pair: pair, Timeframe: string(tf), Candles: make([]candleDTO, 0, len(candles))}
	for _, c := range candles {
		body.Candles = append(body.Candles, candleDTO{Time: c.Bucket, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume})
	}

	var resp predictResponse
	if err := p.postJSON(ctx, "/predict", body, &resp); err != nil {
		return models.Prediction{}, classify("prediction.predict", err)
	}

	label, err := models.ParseSignal(resp.Label)
	if err != nil {
		return models.Prediction{}, models.NewFailure(models.FailureUpstream, "prediction.predict", err)
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return models.Prediction{}, models.Failuref(models.FailureUpstream, "prediction.predict", "confidence %v out of range", resp.Confidence)
	}
	return models.Prediction{
		Label:        label,
		Confidence:   resp.Confidence,
		ModelVersion: resp.ModelVersion,
		ModelBacked:  true,
	}, nil
}

// postJSON posts the given payload to path under baseURL and decodes JSON into dest.
func (p *PredictionClient) postJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    p.baseURL + path,
		Body:   payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}
