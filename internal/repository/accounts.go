package repository

import (
	"context"
	"fmt"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"

	"github.com/go-resty/resty/v2"
)

// AccountsClient reads subscriber profiles and open positions from the account service.
type AccountsClient struct {
	client *resty.Client
}

// AccountsOption configures AccountsClient.
type AccountsOption func(*resty.Client)

// WithAccountsToken sets the bearer token sent with every request.
func WithAccountsToken(token string) AccountsOption {
	return func(c *resty.Client) {
		if token != "" {
			c.SetAuthToken(token)
		}
	}
}

// WithAccountsTimeout sets the request timeout.
func WithAccountsTimeout(d time.Duration) AccountsOption {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// NewAccountsClient creates a client for baseURL.
func NewAccountsClient(baseURL string, opts ...AccountsOption) *AccountsClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5*time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return &AccountsClient{client: c}
}

type subscribersResponse struct {
	Data []models.SubscriberProfile `json:"data"`
}

type positionsResponse struct {
	Data []models.Position `json:"data"`
}

// ListSubscribers implements repository.SubscriberStore.
func (a *AccountsClient) ListSubscribers(ctx context.Context) ([]models.SubscriberProfile, error) {
	var out subscribersResponse
	resp, err := a.client.R().SetContext(ctx).SetResult(&out).Get("/subscribers")
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list subscribers: status %d", resp.StatusCode())
	}
	return out.Data, nil
}

// OpenPositions implements repository.PositionStore.
func (a *AccountsClient) OpenPositions(ctx context.Context) ([]models.Position, error) {
	var out positionsResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("status", "open").
		SetResult(&out).
		Get("/positions")
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("open positions: status %d", resp.StatusCode())
	}
	return out.Data, nil
}

var (
	_ repository.SubscriberStore = (*AccountsClient)(nil)
	_ repository.PositionStore   = (*AccountsClient)(nil)
)
