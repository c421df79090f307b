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
)

// ErrExtractionUnavailable is the single failure signal the extraction
// client emits. Network errors, timeouts, non-2xx statuses and malformed
// payloads all collapse into it; callers only need to know the turn cannot
// use extraction, not why.
var ErrExtractionUnavailable = errors.New("parameter extraction unavailable")

// maxExtractionBodySize caps how much of the extraction response is read (1MB).
const maxExtractionBodySize = 1 << 20

// Extractor is the boundary to the parameter-extraction service.
type Extractor interface {
	Extract(ctx context.Context, message string, history []HistoryTurn) (*ExtractionResult, error)
}

// ExtractionClientConfig holds configuration for the extraction client.
type ExtractionClientConfig struct {
	URL            string
	RequestTimeout time.Duration
	MaxHistory     int
}

// DefaultExtractionClientConfig returns default configuration.
func DefaultExtractionClientConfig() ExtractionClientConfig {
	return ExtractionClientConfig{
		RequestTimeout: 5 * time.Second,
		MaxHistory:     5,
	}
}

// ExtractionClient calls the extraction service over HTTP. It never panics
// or returns transport detail across its boundary: every failure mode maps
// to ErrExtractionUnavailable.
type ExtractionClient struct {
	cfg    ExtractionClientConfig
	client *http.Client
	logger *slog.Logger
}

// NewExtractionClient creates a client for the extraction service at url.
func NewExtractionClient(cfg ExtractionClientConfig, logger *slog.Logger) *ExtractionClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultExtractionClientConfig().RequestTimeout
	}
	return &ExtractionClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

type extractionRequest struct {
	Message string        `json:"message"`
	History []HistoryTurn `json:"history,omitempty"`
}

// Extract sends the message and recent history to the extraction service.
// The call is bounded by the configured timeout and retried once; inbound
// cancellation propagates through ctx.
func (c *ExtractionClient) Extract(ctx context.Context, message string, history []HistoryTurn) (*ExtractionResult, error) {
	if len(history) > c.cfg.MaxHistory {
		history = history[len(history)-c.cfg.MaxHistory:]
	}

	body, err := json.Marshal(extractionRequest{Message: message, History: history})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrExtractionUnavailable, err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying extraction call", "error", lastErr)
		}
		result, err := c.doExtract(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *ExtractionClient) doExtract(ctx context.Context, body []byte) (*ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrExtractionUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close extraction response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrExtractionUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxExtractionBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrExtractionUnavailable, err)
	}

	var result ExtractionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", ErrExtractionUnavailable, err)
	}

	sanitizeExtraction(&result)
	return &result, nil
}

// Allowed categorical vocabularies, mirroring what the extraction model is
// prompted with. Values outside these lists are dropped client-side so a
// hallucinated category never reaches the merge step.
var (
	allowedMakes = vocabulary("BMW", "Audi", "Mercedes", "Toyota", "Honda", "Ford",
		"Volkswagen", "Nissan", "Hyundai", "Kia", "Tesla", "Volvo", "Mazda")
	allowedFuelTypes    = vocabulary("Petrol", "Diesel", "Electric", "Hybrid")
	allowedVehicleTypes = vocabulary("Sedan", "SUV", "Hatchback", "Coupe",
		"Convertible", "Wagon", "Van", "Truck")
	allowedTransmissions = vocabulary("Manual", "Automatic")
)

func vocabulary(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func filterVocabulary(values []string, allowed map[string]struct{}) []string {
	var out []string
	for _, v := range values {
		if _, ok := allowed[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func sanitizeExtraction(result *ExtractionResult) {
	result.PreferredMakes = filterVocabulary(result.PreferredMakes, allowedMakes)
	result.RejectedMakes = filterVocabulary(result.RejectedMakes, allowedMakes)
	result.PreferredFuelTypes = filterVocabulary(result.PreferredFuelTypes, allowedFuelTypes)
	result.RejectedFuelTypes = filterVocabulary(result.RejectedFuelTypes, allowedFuelTypes)
	result.PreferredVehicleTypes = filterVocabulary(result.PreferredVehicleTypes, allowedVehicleTypes)
	result.RejectedVehicleTypes = filterVocabulary(result.RejectedVehicleTypes, allowedVehicleTypes)
	result.PreferredTransmission = filterVocabulary(result.PreferredTransmission, allowedTransmissions)
}
