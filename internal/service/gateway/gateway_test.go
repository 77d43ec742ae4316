package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/service/ratelimit"
	"FxPulse/internal/services/features"
	"FxPulse/pkg/cache"
	xhttp "FxPulse/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	marketCalls  int32
	predictCalls int32
	marketStatus int
	modelStatus  int
	marketDelay  time.Duration
	label        string
}

func (u *upstream) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/quotes", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.marketCalls, 1)
		if u.marketDelay > 0 {
			select {
			case <-time.After(u.marketDelay):
			case <-r.Context().Done():
				return
			}
		}
		if u.marketStatus != 0 {
			w.WriteHeader(u.marketStatus)
			return
		}
		assert.Equal(t, "EUR/USD", r.URL.Query().Get("pair"))
		assert.Equal(t, "1h", r.URL.Query().Get("timeframe"))
		_ = json.NewEncoder(w).Encode(quoteResponse{
			Pair:      "EUR/USD",
			Timeframe: "1h",
			Price:     1.1080,
			Candles: []candleDTO{
				{Close: 1.1000}, {Close: 1.1030}, {Close: 1.1060}, {Close: 1.1080},
			},
		})
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.predictCalls, 1)
		if u.modelStatus != 0 {
			w.WriteHeader(u.modelStatus)
			return
		}
		var req predictRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Candles, 4)
		label := u.label
		if label == "" {
			label = "long"
		}
		_ = json.NewEncoder(w).Encode(predictResponse{Label: label, Confidence: 0.72, ModelVersion: "v3"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(srv *httptest.Server, opts ...Option) *Gateway {
	client := xhttp.NewClient(xhttp.WithTimeout(2 * time.Second))
	return New(NewMarketClient(srv.URL, client), NewPredictionClient(srv.URL, client), opts...)
}

func TestGateway_FetchSuccess(t *testing.T) {
	u := &upstream{}
	g := newGateway(u.server(t))

	q, err := g.Fetch(context.Background(), "EUR/USD", models.TF1h)
	require.NoError(t, err)
	assert.Equal(t, 1.1080, q.Price)
	assert.Len(t, q.Candles, 4)
	assert.Equal(t, models.SignalLong, q.Prediction.Label)
	assert.Equal(t, 0.72, q.Prediction.Confidence)
	assert.Equal(t, "v3", q.Prediction.ModelVersion)
	assert.True(t, q.Prediction.ModelBacked)
}

func TestGateway_InvalidInputBeforeIO(t *testing.T) {
	u := &upstream{}
	g := newGateway(u.server(t))

	_, err := g.Fetch(context.Background(), "eurusd", models.TF1h)
	assert.Equal(t, models.FailureInvalidInput, models.KindOf(err))

	_, err = g.Fetch(context.Background(), "EUR/USD", models.Timeframe("15m"))
	assert.Equal(t, models.FailureInvalidInput, models.KindOf(err))

	assert.Zero(t, atomic.LoadInt32(&u.marketCalls))
}

func TestGateway_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   models.FailureKind
	}{
		{http.StatusTooManyRequests, models.FailureRateLimited},
		{http.StatusNotFound, models.FailureInvalidInput},
		{http.StatusUnprocessableEntity, models.FailureInvalidInput},
		{http.StatusBadGateway, models.FailureUpstream},
		{http.StatusInternalServerError, models.FailureUpstream},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			u := &upstream{marketStatus: tt.status}
			g := newGateway(u.server(t))
			_, err := g.Fetch(context.Background(), "EUR/USD", models.TF1h)
			assert.Equal(t, tt.want, models.KindOf(err))
		})
	}
}

func TestGateway_Timeout(t *testing.T) {
	u := &upstream{marketDelay: time.Second}
	g := newGateway(u.server(t), WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := g.Fetch(context.Background(), "EUR/USD", models.TF1h)
	assert.Equal(t, models.FailureTimeout, models.KindOf(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGateway_CacheAbsorbsDuplicates(t *testing.T) {
	u := &upstream{}
	mc := cache.NewMemoryCache()
	defer mc.Close()
	g := newGateway(u.server(t), WithCache(mc, 20*time.Second))

	for i := 0; i < 3; i++ {
		q, err := g.Fetch(context.Background(), "EUR/USD", models.TF1h)
		require.NoError(t, err)
		assert.Equal(t, models.SignalLong, q.Prediction.Label)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&u.marketCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&u.predictCalls))
}

func TestGateway_LocalRateLimitFailsFast(t *testing.T) {
	u := &upstream{}
	g := newGateway(u.server(t), WithRateLimit(ratelimit.New(), 1, 0))

	_, err := g.Fetch(context.Background(), "EUR/USD", models.TF1h)
	require.NoError(t, err)

	_, err = g.Fetch(context.Background(), "EUR/USD", models.TF1h)
	assert.Equal(t, models.FailureRateLimited, models.KindOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&u.marketCalls))
}

func TestGateway_FallbackOnTransientModelFailure(t *testing.T) {
	u := &upstream{modelStatus: http.StatusServiceUnavailable}
	g := newGateway(u.server(t), WithFallback(true))

	q, err := g.Fetch(context.Background(), "EUR/USD", models.TF1h)
	require.NoError(t, err)
	assert.False(t, q.Prediction.ModelBacked)
	assert.Equal(t, features.HeuristicModelVersion, q.Prediction.ModelVersion)
	assert.Equal(t, models.SignalLong, q.Prediction.Label)
}

func TestGateway_NoFallbackForInvalidInputOrWhenDisabled(t *testing.T) {
	u := &upstream{modelStatus: http.StatusUnprocessableEntity}
	g := newGateway(u.server(t), WithFallback(true))
	_, err := g.Fetch(context.Background(), "EUR/USD", models.TF1h)
	assert.Equal(t, models.FailureInvalidInput, models.KindOf(err))

	u = &upstream{modelStatus: http.StatusServiceUnavailable}
	g = newGateway(u.server(t), WithFallback(false))
	_, err = g.Fetch(context.Background(), "EUR/USD", models.TF1h)
	assert.Equal(t, models.FailureUpstream, models.KindOf(err))
}

func TestGateway_RejectsUnknownLabel(t *testing.T) {
	u := &upstream{label: "moon"}
	g := newGateway(u.server(t))
	_, err := g.Fetch(context.Background(), "EUR/USD", models.TF1h)
	assert.Equal(t, models.FailureUpstream, models.KindOf(err))
}
