package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/glesp/smart-auto-trader/internal/domain"
)

// ErrGatewayUnavailable signals the recommendation gateway could not serve
// the request. Like extraction failures, it degrades to a polite response.
var ErrGatewayUnavailable = errors.New("recommendation gateway unavailable")

// RecommendationGateway is the boundary to the vehicle filtering/ranking
// service. Ranking semantics live entirely on the other side.
type RecommendationGateway interface {
	GetRecommendations(ctx context.Context, userID string, criteria domain.SearchCriteria, excludeIDs []int, maxResults int) ([]domain.Vehicle, error)
}

// RecommendationClientConfig holds configuration for the gateway client.
type RecommendationClientConfig struct {
	URL            string
	RequestTimeout time.Duration
}

// DefaultRecommendationClientConfig returns default configuration.
func DefaultRecommendationClientConfig() RecommendationClientConfig {
	return RecommendationClientConfig{
		RequestTimeout: 5 * time.Second,
	}
}

// RecommendationClient calls the gateway over HTTP JSON.
type RecommendationClient struct {
	cfg    RecommendationClientConfig
	client *http.Client
	logger *slog.Logger
}

// NewRecommendationClient creates a client for the gateway at cfg.URL.
func NewRecommendationClient(cfg RecommendationClientConfig, logger *slog.Logger) *RecommendationClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRecommendationClientConfig().RequestTimeout
	}
	return &RecommendationClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

type recommendationRequest struct {
	UserID     string                `json:"userId"`
	Criteria   domain.SearchCriteria `json:"criteria"`
	ExcludeIDs []int                 `json:"excludeIds,omitempty"`
	MaxResults int                   `json:"maxResults"`
}

type recommendationResponse struct {
	Vehicles []domain.Vehicle `json:"vehicles"`
}

// GetRecommendations fetches ranked vehicles for the criteria, excluding
// already-shown ids. Bounded by the configured timeout with one retry.
func (c *RecommendationClient) GetRecommendations(ctx context.Context, userID string, criteria domain.SearchCriteria, excludeIDs []int, maxResults int) ([]domain.Vehicle, error) {
	body, err := json.Marshal(recommendationRequest{
		UserID:     userID,
		Criteria:   criteria,
		ExcludeIDs: excludeIDs,
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrGatewayUnavailable, err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying recommendation call", "error", lastErr)
		}
		vehicles, err := c.doRequest(ctx, body)
		if err == nil {
			return vehicles, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *RecommendationClient) doRequest(ctx context.Context, body []byte) ([]domain.Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGatewayUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close recommendation response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxExtractionBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrGatewayUnavailable, err)
	}

	var parsed recommendationResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", ErrGatewayUnavailable, err)
	}

	return parsed.Vehicles, nil
}
